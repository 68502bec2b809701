// Package migration seeds a fresh store with demo listings and participant
// profiles so a local instance can walk a booking end to end.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avstrong/staytrust/internal/apperr"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/storage"
	"github.com/avstrong/staytrust/internal/trust"
)

const (
	DemoHostID        = "host-kigali"
	DemoGuestID       = "guest-aline"
	DemoNewGuestID    = "guest-eric"
	DemoEntireID      = "lst-lakeside"
	DemoHomestayID    = "lst-homestay"
	DemoPrivateRoomID = "lst-room"
)

type seedStorage interface {
	storage.Transactor
	GetListing(ctx context.Context, id string) (*booking.Listing, error)
	SaveListings(ctx context.Context, listings []*booking.Listing) error
	SaveProfile(ctx context.Context, profile *trust.Profile) error
}

func DemoListings() []*booking.Listing {
	return []*booking.Listing{
		{
			ID:          DemoEntireID,
			HostID:      DemoHostID,
			HostName:    "Jean Bosco",
			Title:       "Lakeside house in Gisenyi",
			Type:        booking.ListingEntirePlace,
			NightlyRate: 45000,
			Currency:    "RWF",
			MaxGuests:   6,
		},
		{
			ID:          DemoHomestayID,
			HostID:      DemoHostID,
			HostName:    "Jean Bosco",
			Title:       "Family homestay in Kimironko",
			Type:        booking.ListingFamilyHomestay,
			NightlyRate: 18000,
			Currency:    "RWF",
			MaxGuests:   3,
		},
		{
			ID:          DemoPrivateRoomID,
			HostID:      DemoHostID,
			HostName:    "Jean Bosco",
			Title:       "Private room near Kigali Convention Centre",
			Type:        booking.ListingPrivateRoom,
			NightlyRate: 25000,
			Currency:    "RWF",
			MaxGuests:   2,
		},
	}
}

// DemoProfiles returns a verified host, an experienced guest and a guest
// who only signed up.
func DemoProfiles(now time.Time) []*trust.Profile {
	//nolint:exhaustruct
	profiles := []*trust.Profile{
		{
			ParticipantID: DemoHostID,
			DisplayName:   "Jean Bosco",
			Level:         trust.LevelTrusted,
			Flags: trust.Flags{
				PhoneVerified:          true,
				IdentityDocumentStored: true,
				SafetyPledgeAccepted:   true,
				CommunityReference:     "Umudugudu leader, Nyarutarama",
			},
		},
		{
			ParticipantID: DemoGuestID,
			DisplayName:   "Aline",
			Level:         trust.LevelVerified,
			Flags: trust.Flags{
				PhoneVerified:          true,
				IdentityDocumentStored: true,
				CompletedStays:         4,
				HostRecommendationRate: 100,
			},
		},
		{
			ParticipantID: DemoNewGuestID,
			DisplayName:   "Eric",
			Level:         trust.LevelBasic,
		},
	}

	for _, p := range profiles {
		p.Badges = trust.RecomputeBadges(p.Flags)
		p.CreatedAt = now
		p.UpdatedAt = now
	}

	return profiles
}

// Up seeds the demo data once. A store that already holds the demo catalog
// is left alone so restarts never overwrite live profiles.
func Up(ctx context.Context, l *logger.Logger, db seedStorage, now time.Time) error {
	_, err := db.GetListing(ctx, DemoEntireID)
	if err == nil {
		l.LogInfo("Demo data already present, migration skipped")

		return nil
	}

	if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("check demo listing: %w", err)
	}

	listings := DemoListings()
	profiles := DemoProfiles(now)

	err = storage.InTransaction(ctx, l, db, "migration", func(ctx context.Context) error {
		if err := db.SaveListings(ctx, listings); err != nil {
			return fmt.Errorf("save listings to storage: %w", err)
		}

		for _, p := range profiles {
			if err := db.SaveProfile(ctx, p); err != nil {
				return fmt.Errorf("save profile %s to storage: %w", p.ParticipantID, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	l.LogInfo("Migration seeded %d listings and %d profiles", len(listings), len(profiles))

	return nil
}
