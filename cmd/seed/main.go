package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chargeslot/internal/config"
	"chargeslot/internal/database"
	"chargeslot/internal/domain"
	"chargeslot/internal/modules/reservation"
	jwtsvc "chargeslot/internal/pkg/jwt"
	"chargeslot/internal/pkg/logger"
	"chargeslot/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	email    string
	password string
	role     domain.UserRole
	name     string
}

var seedUsers = []seedUser{
	{"admin@chargeslot.dev", "admin123", domain.RoleAdmin, "Admin"},
	{"owner@chargeslot.dev", "owner123", domain.RoleOwner, "Greta Grid"},
	{"client1@chargeslot.dev", "client123", domain.RoleClient, "Lena Volt"},
	{"client2@chargeslot.dev", "client123", domain.RoleClient, "Marc Ampere"},
}

var seedStations = []struct {
	name  string
	power float64
	rate  string
	state domain.StationStatus
}{
	{"Depot A / DC fast 1", 150, "0.65", domain.StationAvailable},
	{"Depot A / DC fast 2", 150, "0.65", domain.StationAvailable},
	{"Depot A / AC 22kW", 22, "0.30", domain.StationAvailable},
	{"Depot B / AC 11kW", 11, "0.25", domain.StationFaulted},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}
	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL, logger.New("warn", false))
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("migrate failed:", err)
	}

	users := repository.NewUserRepository(db)
	stations := repository.NewStationRepository(db)
	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	// ================== USERS ==================
	log.Println("Creating users...")
	created := make(map[domain.UserRole][]*domain.User)
	for _, su := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("bcrypt:", err)
		}
		u, err := users.GetOrCreate(ctx, &domain.User{
			Email:        su.email,
			PasswordHash: string(hash),
			Role:         su.role,
			Name:         su.name,
		})
		if err != nil {
			log.Fatalf("user %s: %v", su.email, err)
		}
		created[su.role] = append(created[su.role], u)
		log.Printf("  %-8s %s / %s (id=%d)", su.role, u.Email, su.password, u.ID)
	}
	owner := created[domain.RoleOwner][0]

	// ================== STATIONS ==================
	log.Println("Creating stations...")
	existing, err := stations.ListByOwner(ctx, owner.ID)
	if err != nil {
		log.Fatal("list stations:", err)
	}
	if len(existing) == 0 {
		for _, s := range seedStations {
			st := &domain.Station{
				OwnerID:       owner.ID,
				Name:          s.name,
				PowerKW:       s.power,
				RatePerMinute: decimal.RequireFromString(s.rate),
				Status:        domain.StationAvailable,
			}
			if err := stations.Create(ctx, st); err != nil {
				log.Fatalf("station %s: %v", s.name, err)
			}
			if s.state != domain.StationAvailable {
				if err := stations.UpdateStatus(ctx, st.ID, s.state); err != nil {
					log.Fatalf("station %s status: %v", s.name, err)
				}
			}
			existing = append(existing, *st)
		}
	}
	for _, st := range existing {
		log.Printf("  station %d %q rate=%s/min", st.ID, st.Name, st.RatePerMinute.StringFixed(2))
	}

	// ================== RESERVATIONS ==================
	log.Println("Creating a pending reservation...")
	svc := reservation.NewService(repository.NewReservationRepository(db), nil, logger.New("warn", false))
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	r, err := svc.Create(ctx, created[domain.RoleClient][0].ID, existing[0].ID, start, start.Add(90*time.Minute))
	switch {
	case errors.Is(err, reservation.ErrConflict):
		log.Println("  window already reserved, skipping")
	case err != nil:
		log.Fatal("reservation:", err)
	default:
		log.Printf("  reservation %d %s-%s total=%s", r.ID,
			r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339), r.TotalPrice.StringFixed(2))
	}

	// ================== TOKENS ==================
	fmt.Println()
	fmt.Println("Dev tokens (Authorization: Bearer <token>):")
	for _, su := range seedUsers {
		for _, u := range created[su.role] {
			if u.Email != su.email {
				continue
			}
			token, err := j.GenerateToken(u.ID, string(u.Role))
			if err != nil {
				log.Fatal("token:", err)
			}
			fmt.Printf("%-24s %s\n", u.Email, token)
		}
	}
	log.Println("Seed completed")
}
