package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/bootstrap"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/logging"
)

// seedPassword is shared by every seeded account so they can log in.
const seedPassword = "password123"

var specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

func main() {
	var (
		doctors int
		users   int
		seed    uint64
	)

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Populate the store with fake doctors and patients",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			logger := logging.New(cfg.LogLevel, cfg.Env)

			store, err := bootstrap.OpenStore(cmd.Context(), cfg, true, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			locker, rdb, err := bootstrap.OpenLocker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			appts := appointment.NewService(store, locker, nil, logger)
			dir := directory.NewService(store, appts, auth.NewBcryptHasher(bcrypt.MinCost),
				auth.NewTokenIssuer(cfg.SigningSecret(), cfg.TokenTTL), directory.AdminCredentials{}, logger)

			faker := gofakeit.New(seed)
			return run(cmd.Context(), dir, faker, doctors, users, logger)
		},
	}
	cmd.Flags().IntVar(&doctors, "doctors", 15, "number of doctors to create")
	cmd.Flags().IntVar(&users, "users", 200, "number of patients to create")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, dir *directory.Service, faker *gofakeit.Faker, doctors, users int, logger zerolog.Logger) error {
	logger.Info().Int("doctors", doctors).Int("users", users).Msg("seed starting")

	created := 0
	for i := 0; i < doctors; i++ {
		_, err := dir.AddDoctor(ctx, directory.NewDoctor{
			Name:       "Dr. " + faker.Name(),
			Email:      uniqueEmail(faker, "doctor", i),
			Password:   seedPassword,
			Image:      faker.URL(),
			Speciality: specialities[faker.Number(0, len(specialities)-1)],
			Degree:     faker.RandomString([]string{"MBBS", "MD", "DO"}),
			Experience: fmt.Sprintf("%d Years", faker.Number(1, 25)),
			About:      faker.Sentence(20),
			Fees:       appointment.Some(float64(faker.Number(3, 20) * 100)),
			Address:    fakeAddress(faker),
		})
		if errors.Is(err, appointment.ErrEmailInUse) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed doctor: %w", err)
		}
		created++
	}
	logger.Info().Int("created", created).Msg("doctors seeded")

	created = 0
	now := time.Now()
	for i := 0; i < users; i++ {
		_, err := dir.CreateUser(ctx, directory.NewUser{
			Name:     faker.Name(),
			Email:    uniqueEmail(faker, "patient", i),
			Password: seedPassword,
			Phone:    faker.Phone(),
			Address:  fakeAddress(faker),
			Gender:   faker.RandomString([]string{"Male", "Female"}),
			DOB:      faker.DateRange(now.AddDate(-80, 0, 0), now.AddDate(-18, 0, 0)).Format(time.DateOnly),
		})
		if errors.Is(err, appointment.ErrEmailInUse) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed patient: %w", err)
		}
		created++
		if created%100 == 0 {
			logger.Info().Int("created", created).Int("total", users).Msg("patients seeded")
		}
	}

	logger.Info().Int("created", created).Msg("seed complete")
	return nil
}

// uniqueEmail keeps fake emails distinct across runs without a lookup.
func uniqueEmail(faker *gofakeit.Faker, role string, i int) string {
	local := strings.ToLower(faker.FirstName() + "." + faker.LastName())
	local = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || r == '.' {
			return r
		}
		return -1
	}, local)
	return fmt.Sprintf("%s.%s%d.%s@example.com", local, role, i, faker.LetterN(4))
}

func fakeAddress(faker *gofakeit.Faker) appointment.Address {
	addr := faker.Address()
	return appointment.Address{
		Line1: addr.Street,
		Line2: addr.City + ", " + addr.Country,
	}
}
