// gentoken — утилита для выдачи подписанного токена авторизации.
// Запуск: go run ./cmd/gentoken -s <секрет> [uuid пользователя]
//
// Без uuid генерируется новый идентификатор. Секрет берётся из AUTH_SECRET, если флаг не задан.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/streak-tracker/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("s", os.Getenv("AUTH_SECRET"), "secret for signing auth tokens")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "auth secret is required: pass -s or set AUTH_SECRET")
		os.Exit(1)
	}

	userID := uuid.New()
	if flag.NArg() > 0 {
		id, err := uuid.Parse(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid user id: %v\n", err)
			os.Exit(1)
		}
		userID = id
	}

	auth := middleware.NewAuthMiddleware(*secret)

	fmt.Println("user:", userID)
	fmt.Println("token:", auth.Sign(userID))
}
