// Package settings persists the reader settings, one key per setting.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yuanying/epubrsvp/internal/layout"
	"github.com/yuanying/epubrsvp/internal/store"
)

// Setting errors.
var (
	ErrUnknownKey = errors.New("unknown setting")
	ErrInvalid    = errors.New("invalid settings")
)

// Settings are the user-adjustable reader options.
type Settings struct {
	FontFamilyRSVP      string `json:"fontFamilyRSVP" validate:"required,fontfamily"`
	FontFamilyReader    string `json:"fontFamilyReader" validate:"required,fontfamily"`
	FontSizeRSVP        int    `json:"fontSizeRSVP" validate:"gte=8,lte=128"`
	FontSizeReader      int    `json:"fontSizeReader" validate:"gte=8,lte=128"`
	WordsPerMinute      int    `json:"wordsPerMinute" validate:"gte=60,lte=1500"`
	RenderType          string `json:"renderType" validate:"oneof=ORP middle"`
	ORP                 bool   `json:"ORP"`
	ORPGuideLine        bool   `json:"ORPGuideLine"`
	SlowDownOnLongWords bool   `json:"slowDownOnLongWords"`
	ShowPreviousOnPause bool   `json:"showPreviousOnPause"`
}

// RSVP render types.
const (
	RenderORP    = "ORP"
	RenderMiddle = "middle"
)

// Default returns the settings used when nothing is stored.
func Default() Settings {
	return Settings{
		FontFamilyRSVP:      layout.DefaultFamily,
		FontFamilyReader:    layout.DefaultFamily,
		FontSizeRSVP:        32,
		FontSizeReader:      16,
		WordsPerMinute:      320,
		RenderType:          RenderORP,
		ORP:                 true,
		ORPGuideLine:        true,
		SlowDownOnLongWords: true,
		ShowPreviousOnPause: true,
	}
}

// field maps a setting key to its struct field.
type field struct {
	key   string
	index int
	name  string
	kind  reflect.Kind
}

var fields = func() []field {
	t := reflect.TypeFor[Settings]()
	out := make([]field, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		key, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		out = append(out, field{key: key, index: i, name: f.Name, kind: f.Type.Kind()})
	}
	return out
}()

// Keys returns the setting keys in declaration order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

func lookup(key string) (field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.key, key) {
			return f, true
		}
	}
	return field{}, false
}

// stored is the persisted shape of one setting.
type stored struct {
	Value json.RawMessage `json:"value"`
}

// Store loads and saves settings.
type Store struct {
	kv       store.KV
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a settings store over kv.
func New(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := validator.New()
	_ = v.RegisterValidation("fontfamily", func(fl validator.FieldLevel) bool {
		return layout.IsFamily(fl.Field().String())
	})
	return &Store{kv: kv, logger: logger, validate: v}
}

// Load reads every setting. Absent or invalid values fall back to their
// defaults, so Load never fails.
func (s *Store) Load(ctx context.Context) Settings {
	out := Default()
	for _, f := range fields {
		var st stored
		err := store.GetJSON(ctx, s.kv, store.SettingKey(f.key), &st)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("failed to read setting", "key", f.key, "error", err)
			continue
		}

		candidate := out
		target := reflect.ValueOf(&candidate).Elem().Field(f.index)
		if err := json.Unmarshal(st.Value, target.Addr().Interface()); err != nil {
			s.logger.Warn("ignoring malformed setting", "key", f.key, "error", err)
			continue
		}
		if err := s.check(&candidate, f); err != nil {
			s.logger.Warn("ignoring invalid setting", "key", f.key, "error", err)
			continue
		}
		out = candidate
	}
	return out
}

// Set parses raw for the named setting, validates and persists it, and
// returns the resulting settings.
func (s *Store) Set(ctx context.Context, key, raw string) (Settings, error) {
	f, ok := lookup(key)
	if !ok {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	current := s.Load(ctx)
	target := reflect.ValueOf(&current).Elem().Field(f.index)
	raw = strings.TrimSpace(raw)
	switch f.kind {
	case reflect.String:
		target.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %s: %q is not a number", ErrInvalid, f.key, raw)
		}
		target.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalid, f.key, raw)
		}
		target.SetBool(b)
	}

	if err := s.check(&current, f); err != nil {
		return Settings{}, err
	}
	if err := s.write(ctx, f, target.Interface()); err != nil {
		return Settings{}, err
	}
	return current, nil
}

// Save validates and persists every setting.
func (s *Store) Save(ctx context.Context, st Settings) error {
	if err := s.validate.Struct(st); err != nil {
		return formatError(err)
	}
	v := reflect.ValueOf(st)
	for _, f := range fields {
		if err := s.write(ctx, f, v.Field(f.index).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a complete settings value.
func (s *Store) Validate(st Settings) error {
	if err := s.validate.Struct(st); err != nil {
		return formatError(err)
	}
	return nil
}

func (s *Store) check(st *Settings, f field) error {
	if err := s.validate.StructPartial(st, f.name); err != nil {
		return formatError(err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, f field, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", f.key, err)
	}
	key := store.SettingKey(f.key)
	if err := store.SetJSON(ctx, s.kv, key, stored{Value: data}); err != nil {
		s.logger.Error("failed to write setting", "key", key, "error", err)
		return err
	}
	return nil
}

// formatError turns validator errors into one readable error.
func formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, keyOf(e.StructField())+" "+friendlyMessage(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func keyOf(structField string) string {
	for _, f := range fields {
		if f.name == structField {
			return f.key
		}
	}
	return structField
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "fontfamily":
		return "must be one of: " + strings.Join(layout.Families(), ", ")
	default:
		return "is invalid"
	}
}
