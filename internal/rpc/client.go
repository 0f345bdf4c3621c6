// Package rpc предоставляет клиент хостингового бэкенда с REST-интерфейсом в стиле PostgREST.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/streak-tracker/internal/model"
	"github.com/mmeshcher/streak-tracker/internal/profile"
	"github.com/mmeshcher/streak-tracker/internal/streak"
)

// ErrUserNotFound возвращается, если профиль пользователя не найден.
var ErrUserNotFound = profile.ErrUserNotFound

const profileColumns = "id,tokens,streak_current,streak_best,streak_freezes,streak_last_date"

// Client инкапсулирует HTTP-взаимодействие с бэкендом.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Error описывает ошибку, возвращённую бэкендом.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// NewClient создаёт клиент бэкенда по адресу baseURL с сервисным ключом apiKey.
func NewClient(baseURL, apiKey string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetStreakStatus вызывает агрегирующую процедуру get_streak_status на дату today пользователя.
func (c *Client) GetStreakStatus(ctx context.Context, userID uuid.UUID, today model.Date) ([]model.StreakStatus, error) {
	var rows []model.StreakStatus
	err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/get_streak_status", nil,
		map[string]any{"p_user_id": userID, "p_today": today}, "", &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PurchaseStreakFreeze вызывает транзакцию покупки заморозки.
func (c *Client) PurchaseStreakFreeze(ctx context.Context, userID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/rpc/purchase_streak_freeze", nil,
		map[string]any{"p_user_id": userID}, "", nil)
}

// UseStreakFreeze вызывает транзакцию использования заморозки.
func (c *Client) UseStreakFreeze(ctx context.Context, userID uuid.UUID, today model.Date) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/rpc/use_streak_freeze", nil,
		map[string]any{"p_user_id": userID, "p_today": today}, "", nil)
}

type streakPatch struct {
	Tokens         int         `json:"tokens"`
	StreakFreezes  int         `json:"streak_freezes"`
	StreakLastDate *model.Date `json:"streak_last_date,omitempty"`
}

// UpdateUserStreak обновляет поля стрика в профиле, только если токены и заморозки
// не изменились с момента чтения. Иначе возвращается streak.ErrConflict.
func (c *Client) UpdateUserStreak(ctx context.Context, userID uuid.UUID, upd model.StreakUpdate) error {
	q := url.Values{}
	q.Set("id", "eq."+userID.String())
	q.Set("tokens", "eq."+strconv.Itoa(upd.ExpectTokens))
	q.Set("streak_freezes", "eq."+strconv.Itoa(upd.ExpectFreezes))
	q.Set("select", "id")

	body := streakPatch{
		Tokens:         upd.Tokens,
		StreakFreezes:  upd.Freezes,
		StreakLastDate: upd.LastDate,
	}

	var updated []json.RawMessage
	if err := c.do(ctx, http.MethodPatch, "/rest/v1/users", q, body, "return=representation", &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return streak.ErrConflict
	}
	return nil
}

// FetchProfile читает профиль пользователя.
func (c *Client) FetchProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID.String())
	q.Set("select", profileColumns)

	var rows []model.Profile
	if err := c.do(ctx, http.MethodGet, "/rest/v1/users", q, nil, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}
	return &rows[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, prefer string, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("rpc client not configured")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rpcErr := &Error{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if len(data) > 0 {
			if err := json.Unmarshal(data, rpcErr); err != nil {
				rpcErr.Message = strings.TrimSpace(string(data))
			}
		}
		return rpcErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
