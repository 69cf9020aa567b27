package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/yourorg/arca/internal/escalation"
)

var ErrPreferencesNotFound = errors.New("user preferences not found")

// Preferences is the subscriber's user_preferences.json. The pipelines only
// read it.
type Preferences struct {
	Email         openapi_types.Email `koanf:"email" validate:"omitempty,email"`
	EmailPassword string              `koanf:"email_password"`
	SMTPHost      string              `koanf:"smtp_host" validate:"required"`
	SMTPPort      int                 `koanf:"smtp_port" validate:"min=1,max=65535"`
	AttachPDF     bool                `koanf:"attach_pdf"`

	SubscribeInternal      bool `koanf:"subscribe_internal"`
	SubscribeNational      bool `koanf:"subscribe_national"`
	SubscribeInternational bool `koanf:"subscribe_international"`
	SubscribeHighRisk      bool `koanf:"subscribe_high_risk"`
	SubscribeMediumRisk    bool `koanf:"subscribe_medium_risk"`
	SubscribeLowRisk       bool `koanf:"subscribe_low_risk"`
}

// DefaultPreferences subscribes to everything and targets Gmail submission.
func DefaultPreferences() Preferences {
	return Preferences{
		SMTPHost:               "smtp.gmail.com",
		SMTPPort:               587,
		SubscribeInternal:      true,
		SubscribeNational:      true,
		SubscribeInternational: true,
		SubscribeHighRisk:      true,
		SubscribeMediumRisk:    true,
		SubscribeLowRisk:       true,
	}
}

// Subscriptions projects the flags onto the escalation policy input.
func (p Preferences) Subscriptions() escalation.Subscriptions {
	return escalation.Subscriptions{
		Internal:      p.SubscribeInternal,
		National:      p.SubscribeNational,
		International: p.SubscribeInternational,
		HighRisk:      p.SubscribeHighRisk,
		MediumRisk:    p.SubscribeMediumRisk,
		LowRisk:       p.SubscribeLowRisk,
	}
}

// LoadPreferences reads a JSON preferences file over the defaults.
func LoadPreferences(path string) (Preferences, error) {
	if !fileExists(path) {
		return Preferences{}, fmt.Errorf("%s: %w", path, ErrPreferencesNotFound)
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultPreferences(), "koanf"), nil); err != nil {
		return Preferences{}, fmt.Errorf("loading preference defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return Preferences{}, fmt.Errorf("loading %s: %w", path, err)
	}
	var prefs Preferences
	if err := k.Unmarshal("", &prefs); err != nil {
		return Preferences{}, fmt.Errorf("unmarshaling preferences: %w", err)
	}
	if err := validator.New().Struct(prefs); err != nil {
		return Preferences{}, fmt.Errorf("invalid preferences: %w", err)
	}
	return prefs, nil
}
