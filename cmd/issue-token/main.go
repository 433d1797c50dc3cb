package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/service"
	"golang.org/x/term"
)

// issue-token mints a JWT for a student or teacher. Identity is owned by
// another system; this is for local testing and operator access.
func main() {
	var (
		promptSecret bool
		expiryHours  int
	)
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.IntVar(&expiryHours, "hours", 0, "Token lifetime in hours (default JWT_EXPIRY_HOURS)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if expiryHours > 0 {
		cfg.JWTExpiry = time.Duration(expiryHours) * time.Hour
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Access Token ===")

	fmt.Print("Enter Role (STUDENT/TEACHER): ")
	roleStr, _ := reader.ReadString('\n')
	role := service.Role(strings.ToUpper(strings.TrimSpace(roleStr)))
	if role != service.RoleStudent && role != service.RoleTeacher {
		fmt.Println("Error: Role must be STUDENT or TEACHER")
		os.Exit(1)
	}

	fmt.Print("Enter User ID: ")
	idStr, _ := reader.ReadString('\n')
	userID, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil || userID <= 0 {
		fmt.Println("Error: User ID must be a positive number")
		os.Exit(1)
	}

	if promptSecret {
		fmt.Print("Enter JWT Secret: ")
		byteSecret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after secret input
		if err != nil {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		if len(byteSecret) < 16 {
			fmt.Println("Error: Secret must be at least 16 characters")
			os.Exit(1)
		}
		cfg.JWTSecret = string(byteSecret)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).GenerateToken(userID, role)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("\n%s token for user %d (valid %s):\n%s\n", role, userID, cfg.JWTExpiry, token)
}
