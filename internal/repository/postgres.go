// Package repository содержит реализацию бэкенда стриков поверх PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/streak-tracker/internal/model"
	"github.com/mmeshcher/streak-tracker/internal/profile"
	"github.com/mmeshcher/streak-tracker/internal/streak"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var ErrUserNotFound = profile.ErrUserNotFound

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет чтение при временных ошибках. Записи не повторяются.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil || i == len(delays) || !isTransient(err) {
			return err
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// mapProcError переводит исключения хранимых процедур в ошибки домена.
func mapProcError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.NoDataFound:
		return ErrUserNotFound
	case pgerrcode.CheckViolation:
		return fmt.Errorf("%w: %s", streak.ErrInsufficientFunds, pgErr.ConstraintName)
	case pgerrcode.RaiseException:
		msg := strings.ToLower(pgErr.Message)
		switch {
		case strings.Contains(msg, "insufficient"):
			return fmt.Errorf("%w: %s", streak.ErrInsufficientFunds, pgErr.Message)
		case strings.Contains(msg, "no freezes"):
			return fmt.Errorf("%w: %s", streak.ErrNoFreezes, pgErr.Message)
		}
	}
	return err
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetStreakStatus вызывает агрегирующую процедуру get_streak_status.
// today — текущая дата пользователя, относительно которой считаются сгорание и риск.
func (r *PostgresRepository) GetStreakStatus(ctx context.Context, userID uuid.UUID, today model.Date) ([]model.StreakStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT current_streak, best_streak, freezes_available, last_activity_date, is_at_risk, milestones_achieved
		 FROM get_streak_status($1, $2)`,
		userID, pgDate(today),
	)
	if err != nil {
		return nil, fmt.Errorf("get streak status: %w", err)
	}
	defer rows.Close()

	var res []model.StreakStatus
	for rows.Next() {
		var (
			st         model.StreakStatus
			last       pgtype.Date
			milestones []int32
		)
		if err := rows.Scan(&st.CurrentStreak, &st.BestStreak, &st.FreezesAvailable, &last, &st.IsAtRisk, &milestones); err != nil {
			return nil, fmt.Errorf("scan streak status: %w", err)
		}

		st.LastActivityDate = dateFromPg(last)
		st.MilestonesAchieved = make([]int, 0, len(milestones))
		for _, m := range milestones {
			st.MilestonesAchieved = append(st.MilestonesAchieved, int(m))
		}
		res = append(res, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PurchaseStreakFreeze атомарно списывает токены и начисляет одну заморозку.
func (r *PostgresRepository) PurchaseStreakFreeze(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `SELECT purchase_streak_freeze($1)`, userID)
	if err != nil {
		return fmt.Errorf("purchase streak freeze: %w", mapProcError(err))
	}
	return nil
}

// UseStreakFreeze атомарно тратит заморозку и переносит дату активности на today.
func (r *PostgresRepository) UseStreakFreeze(ctx context.Context, userID uuid.UUID, today model.Date) error {
	_, err := r.pool.Exec(ctx, `SELECT use_streak_freeze($1, $2)`, userID, pgDate(today))
	if err != nil {
		return fmt.Errorf("use streak freeze: %w", mapProcError(err))
	}
	return nil
}

// UpdateUserStreak выполняет условное обновление токенов и заморозок.
// Если значения изменились с момента чтения, возвращает streak.ErrConflict.
func (r *PostgresRepository) UpdateUserStreak(ctx context.Context, userID uuid.UUID, upd model.StreakUpdate) error {
	var lastDate *time.Time
	if upd.LastDate != nil {
		d := upd.LastDate.At(time.UTC)
		lastDate = &d
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET tokens = $2, streak_freezes = $3, streak_last_date = COALESCE($4::date, streak_last_date)
		 WHERE id = $1 AND tokens = $5 AND streak_freezes = $6`,
		userID, upd.Tokens, upd.Freezes, lastDate, upd.ExpectTokens, upd.ExpectFreezes,
	)
	if err != nil {
		return fmt.Errorf("update user streak: %w", mapProcError(err))
	}

	if cmdTag.RowsAffected() == 0 {
		return streak.ErrConflict
	}

	return nil
}

// FetchProfile возвращает профиль пользователя.
func (r *PostgresRepository) FetchProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var (
		p                              model.Profile
		tokens, current, best, freezes int32
		last                           pgtype.Date
	)

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, tokens, streak_current, streak_best, streak_freezes, streak_last_date
			 FROM users WHERE id = $1`,
			userID,
		).Scan(&p.ID, &tokens, &current, &best, &freezes, &last)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	p.Tokens = intPtr(tokens)
	p.StreakCurrent = intPtr(current)
	p.StreakBest = intPtr(best)
	p.StreakFreezes = intPtr(freezes)
	p.StreakLastDate = dateFromPg(last)

	return &p, nil
}

func pgDate(d model.Date) pgtype.Date {
	return pgtype.Date{Time: d.At(time.UTC), Valid: true}
}

func dateFromPg(d pgtype.Date) *model.Date {
	if !d.Valid || d.InfinityModifier != pgtype.Finite {
		return nil
	}
	res := model.DateOf(d.Time)
	return &res
}

func intPtr(v int32) *int {
	n := int(v)
	return &n
}
