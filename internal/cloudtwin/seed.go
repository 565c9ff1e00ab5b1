package cloudtwin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
)

// Seed is the YAML fixture format for twin state:
//
//	events:
//	  - id: evt-1
//	    name: Expo
//	    attendees:
//	      - email: ana@example.com
//	        fullName: Ana
//	    experiences:
//	      - id: exp-1
//	        name: Racing
type Seed struct {
	Events []SeedEvent `yaml:"events"`
}

// SeedEvent is one event with its attendees and experiences.
type SeedEvent struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Type        string           `yaml:"type"`
	AccessType  string           `yaml:"accessType"`
	Active      *bool            `yaml:"active"`
	InitialDate *time.Time       `yaml:"initialDate"`
	FinishDate  *time.Time       `yaml:"finishDate"`
	Fields      []map[string]any `yaml:"registrationFields"`
	Attendees   []SeedAttendee   `yaml:"attendees"`
	Experiences []SeedExperience `yaml:"experiences"`
}

// SeedAttendee is a cloud-side attendee.
type SeedAttendee struct {
	ID       string `yaml:"id"`
	UserID   string `yaml:"userId"`
	Email    string `yaml:"email"`
	FullName string `yaml:"fullName"`
	Country  string `yaml:"country"`
	City     string `yaml:"city"`
	Origin   string `yaml:"origin"`
}

// SeedExperience is a cloud-side event experience.
type SeedExperience struct {
	ID           string `yaml:"id"`
	ExperienceID string `yaml:"experienceId"`
	Name         string `yaml:"name"`
	CustomName   string `yaml:"customName"`
	Location     string `yaml:"location"`
	Active       *bool  `yaml:"active"`
}

// ParseSeed decodes a YAML seed. Unknown keys are rejected.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Seed
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cloudtwin: parsing seed: %w", err)
	}

	for i, ev := range s.Events {
		if ev.ID == "" {
			return nil, fmt.Errorf("cloudtwin: seed event %d: id is required", i)
		}
	}

	return &s, nil
}

// LoadSeedFile reads and parses a YAML seed file.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cloudtwin: opening seed: %w", err)
	}
	defer f.Close()

	return ParseSeed(f)
}

// Load adds the seed's records to the twin, upserting by id and email.
func (t *Twin) Load(s *Seed) error {
	for _, se := range s.Events {
		ev := cloud.Event{
			ID:          se.ID,
			Name:        se.Name,
			Description: se.Description,
			Type:        se.Type,
			AccessType:  se.AccessType,
			Active:      se.Active == nil || *se.Active,
			InitialDate: se.InitialDate,
			FinishDate:  se.FinishDate,
		}

		if len(se.Fields) > 0 {
			raw, err := json.Marshal(se.Fields)
			if err != nil {
				return fmt.Errorf("cloudtwin: event %s registration fields: %w", se.ID, err)
			}

			ev.RegistrationFields = raw
		}

		t.mem.putEvent(ev)

		for _, sa := range se.Attendees {
			t.mem.upsertAttendee(se.ID, cloud.Attendee{
				ID:       sa.ID,
				UserID:   sa.UserID,
				Email:    sa.Email,
				FullName: sa.FullName,
				Country:  sa.Country,
				City:     sa.City,
				Origin:   sa.Origin,
			})
		}

		for _, sx := range se.Experiences {
			x := cloud.Experience{
				ID:           sx.ID,
				ExperienceID: sx.ExperienceID,
				CustomName:   sx.CustomName,
				Location:     sx.Location,
				Active:       sx.Active,
			}

			if sx.Name != "" {
				x.Experience = &cloud.ExperienceRef{Name: sx.Name}
			}

			t.mem.putExperience(se.ID, x)
		}
	}

	return nil
}
