package fulfillment

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
	"github.com/cleanconnect/cleanconnect/internal/pkg/webhook"
)

// Flow says which kind of order a payment pays for.
type Flow string

const (
	FlowRecurring Flow = "recurring"
	FlowOneOff    Flow = "one_off"
)

// Metadata keys attached to a payment.
const (
	KeyEmail             = "email"
	KeyName              = "name"
	KeyPhone             = "phone"
	KeyFlow              = "flow"
	KeyFrequency         = "frequency"
	KeyUnitPriceCents    = "unitPriceCents"
	KeyBundleAmountCents = "bundleAmountCents"
	KeyHours             = "hours"
	KeyJobType           = "jobType"
	KeyAmountCents       = "amountCents"
	KeyDesiredDate       = "desiredDate"
	KeyStreet            = "street"
	KeyHouseNumber       = "houseNumber"
	KeyAddition          = "addition"
	KeyPostalCode        = "postalCode"
	KeyCity              = "city"
	KeyCleanerID         = "cleanerId"
	KeySubscriptionID    = "subscriptionId"
)

var (
	recurringRequired = []string{KeyEmail, KeyFrequency, KeyUnitPriceCents, KeyBundleAmountCents}
	oneOffRequired    = []string{KeyEmail, KeyJobType, KeyAmountCents}
)

// noPreference values mean the customer did not pick a cleaner.
var noPreference = map[string]struct{}{
	"":              {},
	"none":          {},
	"no-preference": {},
	"no_preference": {},
	"geen":          {},
}

// Metadata is the validated order description carried by a payment.
type Metadata struct {
	Flow  Flow
	Email string `meta:"email" validate:"required,email,max=200"`
	Name  string `meta:"name" validate:"max=150"`
	Phone string `meta:"phone" validate:"max=40"`

	Frequency         string `meta:"frequency" validate:"omitempty,oneof=weekly biweekly monthly"`
	UnitPriceCents    int64  `meta:"unitPriceCents" validate:"gte=0"`
	BundleAmountCents int64  `meta:"bundleAmountCents" validate:"gte=0"`

	JobType     string `meta:"jobType" validate:"max=60"`
	AmountCents int64  `meta:"amountCents" validate:"gte=0"`

	Hours       float64 `meta:"hours" validate:"gte=0,lte=24"`
	DesiredDate *time.Time

	Street      string `meta:"street" validate:"max=200"`
	HouseNumber string `meta:"houseNumber" validate:"max=20"`
	Addition    string `meta:"addition" validate:"max=20"`
	PostalCode  string `meta:"postalCode" validate:"max=16"`
	City        string `meta:"city" validate:"max=120"`

	// CleanerID is the preferred cleaner, 0 when there is no preference.
	CleanerID uint
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("meta")
	})
	return v
}

// DetectFlow picks the order flow from the metadata. An explicit "flow" key
// wins, then the presence of a job type. Everything else is recurring.
func DetectFlow(m webhook.Metadata) Flow {
	switch strings.ToLower(m.Get(KeyFlow)) {
	case "one_off", "one-off", "oneoff", "job", "single":
		return FlowOneOff
	case "recurring", "subscription":
		return FlowRecurring
	}
	if m.Get(KeyJobType) != "" && m.Get(KeyFrequency) == "" {
		return FlowOneOff
	}
	return FlowRecurring
}

// MissingKeys returns the required keys absent for flow, in declaration order.
func MissingKeys(m webhook.Metadata, flow Flow) []string {
	required := recurringRequired
	if flow == FlowOneOff {
		required = oneOffRequired
	}
	var missing []string
	for _, k := range required {
		if m.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// ParseMetadata validates the payment metadata. Absent required keys and
// unusable values are reported as *apperr.ValidationError.
func ParseMetadata(m webhook.Metadata) (*Metadata, error) {
	flow := DetectFlow(m)
	if missing := MissingKeys(m, flow); len(missing) > 0 {
		return nil, &apperr.ValidationError{Missing: missing}
	}

	var invalid []string
	intField := func(key string) int64 {
		n, _, err := m.Int64(key)
		if err != nil {
			invalid = append(invalid, key)
		}
		return n
	}

	md := &Metadata{
		Flow:        flow,
		Email:       models.NormalizeEmail(m.Get(KeyEmail)),
		Name:        m.Get(KeyName),
		Phone:       m.Get(KeyPhone),
		JobType:     m.Get(KeyJobType),
		Street:      m.Get(KeyStreet),
		HouseNumber: m.Get(KeyHouseNumber),
		Addition:    m.Get(KeyAddition),
		PostalCode:  models.NormalizePostalCode(m.Get(KeyPostalCode)),
		City:        m.Get(KeyCity),
	}

	if flow == FlowRecurring {
		md.Frequency = models.NormalizeFrequency(m.Get(KeyFrequency))
		if md.Frequency == "" {
			invalid = append(invalid, KeyFrequency)
		}
		md.UnitPriceCents = intField(KeyUnitPriceCents)
		md.BundleAmountCents = intField(KeyBundleAmountCents)
	} else {
		md.AmountCents = intField(KeyAmountCents)
	}

	if v := m.Get(KeyHours); v != "" {
		h, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			invalid = append(invalid, KeyHours)
		}
		md.Hours = h
	}

	if v := m.Get(KeyDesiredDate); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			invalid = append(invalid, KeyDesiredDate)
		} else {
			md.DesiredDate = &d
		}
	}

	if id, ok := parseCleanerPreference(m.Get(KeyCleanerID)); ok {
		md.CleanerID = id
	}

	if len(invalid) == 0 {
		invalid = append(invalid, structErrors(md)...)
	}
	if len(invalid) > 0 {
		return nil, &apperr.ValidationError{Invalid: dedupe(invalid)}
	}
	return md, nil
}

// parseCleanerPreference returns the preferred cleaner id. Sentinels and
// non-numeric values mean no preference.
func parseCleanerPreference(v string) (uint, bool) {
	if _, ok := noPreference[strings.ToLower(v)]; ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func structErrors(md *Metadata) []string {
	err := validate.Struct(md)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"metadata"}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Field())
	}
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
