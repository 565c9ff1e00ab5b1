// Package edge enforces the business rules of every local write: one
// registration per email and event, one scored play per attendee and
// experience, one redemption per attendee and event, and no redemption
// beyond the points earned. The rules hold with or without cloud
// connectivity; every accepted row is stored unsynced.
package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonimelisma/edge-datahub/internal/ident"
	"github.com/tonimelisma/edge-datahub/internal/store"
)

// CheckInStation marks attendees registered at an edge station.
const CheckInStation = "station"

// Service applies business rules on top of the local store.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService returns a Service writing through st.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// RegisterInput carries a station registration.
type RegisterInput struct {
	EventID    string
	FullName   string
	Email      string
	Country    string
	City       string
	Properties json.RawMessage
}

// RegisterAttendee registers an attendee for an event. Registering the same
// email twice for one event returns the stored attendee with
// StatusAlreadyRegistered.
func (s *Service) RegisterAttendee(ctx context.Context, in RegisterInput) (*store.Attendee, Status, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := ident.NormalizeEmail(in.Email)

	var errs []error
	if strings.TrimSpace(in.EventID) == "" {
		errs = append(errs, errors.New("eventId is required"))
	}

	if fullName == "" {
		errs = append(errs, errors.New("fullName is required"))
	}

	if email == "" {
		errs = append(errs, errors.New("email is required"))
	}

	if len(errs) > 0 {
		return nil, "", validation(errors.Join(errs...))
	}

	var (
		out    *store.Attendee
		status Status
	)

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		ev, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			return notFound(err, "event %s", in.EventID)
		}

		existing, err := tx.FindAttendeeByEmail(ctx, ev.LocalID, email)
		if err == nil {
			out, status = existing, StatusAlreadyRegistered
			return nil
		}

		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := tx.Now()
		a := &store.Attendee{
			EventID:     ev.LocalID,
			FullName:    fullName,
			Email:       email,
			Code:        ident.Code(email),
			Country:     strings.TrimSpace(in.Country),
			City:        strings.TrimSpace(in.City),
			CheckInAt:   &now,
			CheckInType: CheckInStation,
			Origin:      CheckInStation,
			Properties:  in.Properties,
		}

		if err := tx.InsertAttendee(ctx, a); err != nil {
			return err
		}

		collisions, err := tx.CountCodeCollisions(ctx, ev.LocalID, a.Code, a.LocalID)
		if err != nil {
			return err
		}

		if collisions > 0 {
			s.logger.Warn("attendee code shared with another registration",
				slog.String("event_id", ev.LocalID.String()),
				slog.String("code", a.Code),
				slog.Int("others", collisions),
			)
		}

		out, status = a, StatusCreated

		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("edge: registering attendee: %w", err)
	}

	s.logger.Info("attendee registered",
		slog.String("attendee_id", out.LocalID.String()),
		slog.String("status", string(status)),
	)

	return out, status, nil
}

// LookupAttendeeByCode returns the attendee holding code. When codes
// collide the earliest registration is returned.
func (s *Service) LookupAttendeeByCode(ctx context.Context, code string) (*store.Attendee, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validation(errors.New("code is required"))
	}

	a, err := s.store.FindAttendeeByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("edge: looking up code: %w", notFound(err, "attendee with code %s", code))
	}

	return a, nil
}

// PlayInput carries one experience interaction.
type PlayInput struct {
	ExperienceID  string
	AttendeeID    string
	PlayTimestamp time.Time
	Score         decimal.Decimal
	BonusScore    decimal.Decimal
	Data          json.RawMessage
}

// LogExperiencePlay records a play. Only the first nonzero score per
// attendee and experience counts; later plays are stored with a zero score
// and StatusLoggedUnscored.
func (s *Service) LogExperiencePlay(ctx context.Context, in PlayInput) (*store.PlayRecord, Status, error) {
	if strings.TrimSpace(in.ExperienceID) == "" {
		return nil, "", validation(errors.New("eventExperienceId is required"))
	}

	if in.Score.IsNegative() || in.BonusScore.IsNegative() {
		return nil, "", validation(errors.New("score and bonusScore must not be negative"))
	}

	var (
		out    *store.PlayRecord
		status Status
	)

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		exp, err := tx.GetExperience(ctx, in.ExperienceID)
		if err != nil {
			return notFound(err, "experience %s", in.ExperienceID)
		}

		attendee, err := tx.GetAttendee(ctx, in.AttendeeID)
		if err != nil || attendee.EventID != exp.EventID {
			if err == nil {
				err = store.ErrNotFound
			}

			return notFound(err, "attendee %s for event %s", in.AttendeeID, exp.EventID)
		}

		scored, err := tx.HasScoredPlay(ctx, attendee.LocalID, exp.LocalID)
		if err != nil {
			return err
		}

		p := &store.PlayRecord{
			EventID:       exp.EventID,
			ExperienceID:  exp.LocalID,
			AttendeeID:    attendee.LocalID,
			Score:         in.Score,
			BonusScore:    in.BonusScore,
			PlayTimestamp: in.PlayTimestamp,
			Data:          in.Data,
		}

		if p.PlayTimestamp.IsZero() {
			p.PlayTimestamp = tx.Now()
		}

		status = StatusLogged
		if scored {
			p.Score = decimal.Zero
			status = StatusLoggedUnscored
		}

		if err := tx.InsertPlay(ctx, p); err != nil {
			return err
		}

		out = p

		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("edge: logging play: %w", err)
	}

	s.logger.Info("experience play logged",
		slog.String("play_id", out.LocalID.String()),
		slog.String("status", string(status)),
		slog.String("score", out.Score.String()),
	)

	return out, status, nil
}

// RedeemInput carries a points redemption.
type RedeemInput struct {
	EventID        string
	AttendeeID     string
	PointsRedeemed decimal.Decimal
	Reason         string
	Metadata       json.RawMessage
}

// RedeemPoints records a redemption. An attendee redeems at most once per
// event; a repeat call returns the stored redemption with
// StatusAlreadyRedeemed. Redeeming more than the attendee's total points
// fails with ErrConflict.
func (s *Service) RedeemPoints(ctx context.Context, in RedeemInput) (*store.Redemption, Status, error) {
	reason := strings.TrimSpace(in.Reason)

	var errs []error
	if reason == "" {
		errs = append(errs, errors.New("reason is required"))
	}

	if in.PointsRedeemed.IsNegative() {
		errs = append(errs, errors.New("pointsRedeemed must not be negative"))
	}

	if len(errs) > 0 {
		return nil, "", validation(errors.Join(errs...))
	}

	var (
		out    *store.Redemption
		status Status
	)

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		ev, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			return notFound(err, "event %s", in.EventID)
		}

		attendee, err := tx.GetAttendee(ctx, in.AttendeeID)
		if err != nil || attendee.EventID != ev.LocalID {
			if err == nil {
				err = store.ErrNotFound
			}

			return notFound(err, "attendee %s for event %s", in.AttendeeID, in.EventID)
		}

		existing, err := tx.FindRedemption(ctx, ev.LocalID, attendee.LocalID)
		if err == nil {
			out, status = existing, StatusAlreadyRedeemed
			return nil
		}

		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		total, err := tx.TotalPoints(ctx, ev.LocalID, attendee.LocalID)
		if err != nil {
			return err
		}

		if in.PointsRedeemed.GreaterThan(total) {
			return fmt.Errorf("%w: cannot redeem %s points, attendee has %s",
				ErrConflict, in.PointsRedeemed, total)
		}

		r := &store.Redemption{
			EventID:        ev.LocalID,
			AttendeeID:     attendee.LocalID,
			PointsRedeemed: in.PointsRedeemed,
			Reason:         reason,
			Metadata:       in.Metadata,
		}

		if err := tx.InsertRedemption(ctx, r); err != nil {
			return err
		}

		out, status = r, StatusRedeemed

		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("edge: redeeming points: %w", err)
	}

	s.logger.Info("points redemption handled",
		slog.String("redemption_id", out.LocalID.String()),
		slog.String("status", string(status)),
		slog.String("points", out.PointsRedeemed.String()),
	)

	return out, status, nil
}

// StatusQuery selects an attendee. The first non-empty field wins in the
// order AttendeeID, Code, Email.
type StatusQuery struct {
	AttendeeID string
	Code       string
	Email      string
}

// AttendeeStatus is an attendee's identity plus their point balance.
type AttendeeStatus struct {
	ID          ident.LocalID   `json:"id"`
	RemoteID    ident.RemoteID  `json:"remoteId,omitzero"`
	EventID     ident.LocalID   `json:"eventId"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Code        string          `json:"code"`
	CheckInAt   *time.Time      `json:"checkInAt"`
	TotalPoints decimal.Decimal `json:"totalPoints"`
}

// GetAttendeeStatus resolves an attendee and totals their points for the
// attendee's event.
func (s *Service) GetAttendeeStatus(ctx context.Context, q StatusQuery) (*AttendeeStatus, error) {
	var (
		a   *store.Attendee
		err error
	)

	switch {
	case strings.TrimSpace(q.AttendeeID) != "":
		a, err = s.store.GetAttendee(ctx, q.AttendeeID)
	case strings.TrimSpace(q.Code) != "":
		a, err = s.store.FindAttendeeByCode(ctx, strings.TrimSpace(q.Code))
	case strings.TrimSpace(q.Email) != "":
		a, err = s.store.FindAttendeeByEmailAnyEvent(ctx, ident.NormalizeEmail(q.Email))
	default:
		return nil, validation(errors.New("one of attendeeId, code or email is required"))
	}

	if err != nil {
		return nil, fmt.Errorf("edge: attendee status: %w", notFound(err, "attendee"))
	}

	total, err := s.store.TotalPoints(ctx, a.EventID, a.LocalID)
	if err != nil {
		return nil, fmt.Errorf("edge: attendee status: %w", err)
	}

	return &AttendeeStatus{
		ID:          a.LocalID,
		RemoteID:    a.RemoteID,
		EventID:     a.EventID,
		FullName:    a.FullName,
		Email:       a.Email,
		Code:        a.Code,
		CheckInAt:   a.CheckInAt,
		TotalPoints: total,
	}, nil
}

func validation(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// notFound rewrites store.ErrNotFound into ErrNotFound with context and
// passes other errors through unchanged.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}

	return err
}
