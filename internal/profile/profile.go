package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Value tokens a form field may reference. The engine substitutes the
// matching applicant value when filling the form.
const (
	TokenLastName  = "last_name"
	TokenFirstName = "first_name"
	TokenEmail     = "email"
	TokenPassport  = "passport"
	TokenPhone     = "phone"
)

// Field binds a CSS selector to an applicant value token. Selectors that do
// not exist on the page are skipped, so a profile may list variants for the
// same logical field.
type Field struct {
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
}

// Discovery describes how month and day pages are walked. Month URLs carry
// DateParam formatted with DateLayout, pinned to AnchorDay so every request
// lands mid-month regardless of month length.
type Discovery struct {
	DateParam     string   `yaml:"date_param"`
	DateLayout    string   `yaml:"date_layout"`
	AnchorDay     int      `yaml:"anchor_day"`
	MonthOffsets  []int    `yaml:"month_offsets"`
	DaySelectors  []string `yaml:"day_selectors"`
	SlotSelectors []string `yaml:"slot_selectors"`
}

// Form describes the booking form: captcha input, applicant fields, and the
// submit buttons tried in order.
type Form struct {
	CaptchaInput   string   `yaml:"captcha_input"`
	CaptchaImage   string   `yaml:"captcha_image"`
	Fields         []Field  `yaml:"fields"`
	CategorySelect string   `yaml:"category_select"`
	GateSubmits    []string `yaml:"gate_submits"`
	SubmitButtons  []string `yaml:"submit_buttons"`
}

// Markers are lowercase phrases matched against normalized page text to
// classify what the site returned.
type Markers struct {
	Success  []string `yaml:"success"`
	NoSlots  []string `yaml:"no_slots"`
	HardFail []string `yaml:"hard_fail"`
}

// Profile bundles every site-specific selector and marker. The built-in
// default targets the consulate appointment system; a YAML file pointed to
// by paths.profile_path overrides individual values.
type Profile struct {
	Name      string    `yaml:"name"`
	Discovery Discovery `yaml:"discovery"`
	Form      Form      `yaml:"form"`
	Markers   Markers   `yaml:"markers"`
}

// Default returns the built-in site profile.
func Default() Profile {
	return Profile{
		Name: "consulate-appointments",
		Discovery: Discovery{
			DateParam:    "dateStr",
			DateLayout:   "02.01.2006",
			AnchorDay:    15,
			MonthOffsets: []int{2, 3, 1, 4, 5, 6},
			DaySelectors: []string{
				"a.arrow[href*='appointment_showDay']",
				"a[href*='appointment_showDay']",
				"a[href*='showDay']",
			},
			SlotSelectors: []string{
				"a.arrow[href*='appointment_showForm']",
				"a[href*='appointment_showForm']",
				"a[href*='showForm']",
			},
		},
		Form: Form{
			CaptchaInput: "input[name='captchaText']",
			CaptchaImage: "captcha img, img[src*='captcha']",
			Fields: []Field{
				{Selector: "input[name='lastname']", Value: TokenLastName},
				{Selector: "input[name='firstname']", Value: TokenFirstName},
				{Selector: "input[name='email']", Value: TokenEmail},
				{Selector: "input[name='emailrepeat']", Value: TokenEmail},
				{Selector: "input[name='emailRepeat']", Value: TokenEmail},
				{Selector: "input[name='fields[0].content']", Value: TokenPassport},
				{Selector: "input[name='fields[1].content']", Value: TokenPhone},
			},
			CategorySelect: "select",
			GateSubmits: []string{
				"input[type='submit']",
				"button[type='submit']",
				"input[value='Submit']",
				"input[value='Weiter']",
			},
			SubmitButtons: []string{
				"input[type='submit'][value='Submit']",
				"input[name='action:appointment_addAppointment']",
				"input[type='submit']",
				"button[type='submit']",
			},
		},
		Markers: Markers{
			Success: []string{
				"appointment number",
				"termin wurde gebucht",
				"ihre buchung",
				"successfully",
				"confirmation",
				"vielen dank",
			},
			NoSlots: []string{
				"no appointments",
				"keine termine",
			},
			HardFail: []string{
				"ein fehler ist aufgetreten",
				"session expired",
				"sitzung abgelaufen",
				"access denied",
			},
		},
	}
}

// Load reads a profile override from path. An empty path returns the
// built-in default. Keys present in the file override the default value;
// lists replace their default wholesale.
func Load(path string) (Profile, error) {
	p := Default()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate ensures the profile can drive a hunt.
func (p *Profile) Validate() error {
	if len(p.Discovery.DaySelectors) == 0 {
		return errors.New("profile: discovery.day_selectors must not be empty")
	}
	if len(p.Discovery.SlotSelectors) == 0 {
		return errors.New("profile: discovery.slot_selectors must not be empty")
	}
	if len(p.Discovery.MonthOffsets) == 0 {
		return errors.New("profile: discovery.month_offsets must not be empty")
	}
	if strings.TrimSpace(p.Discovery.DateLayout) == "" {
		return errors.New("profile: discovery.date_layout must be set")
	}
	if p.Discovery.AnchorDay < 1 || p.Discovery.AnchorDay > 28 {
		return errors.New("profile: discovery.anchor_day must be between 1 and 28")
	}
	if strings.TrimSpace(p.Form.CaptchaInput) == "" {
		return errors.New("profile: form.captcha_input must be set")
	}
	if len(p.Form.SubmitButtons) == 0 {
		return errors.New("profile: form.submit_buttons must not be empty")
	}
	if len(p.Markers.Success) == 0 {
		return errors.New("profile: markers.success must not be empty")
	}
	return nil
}

// NormalizeContent canonicalizes page text for marker matching: NFC
// normalization collapses combining characters so "für" matches regardless of
// how the site encodes the umlaut, and lowercasing makes matching
// case-insensitive.
func NormalizeContent(content string) string {
	return strings.ToLower(norm.NFC.String(content))
}

func containsAny(content string, markers []string) string {
	for _, marker := range markers {
		needle := NormalizeContent(marker)
		if needle == "" {
			continue
		}
		if strings.Contains(content, needle) {
			return marker
		}
	}
	return ""
}

// SuccessIn returns the first success marker found in normalized content.
func (m Markers) SuccessIn(content string) string {
	return containsAny(content, m.Success)
}

// NoSlotsIn returns the first no-slots marker found in normalized content.
func (m Markers) NoSlotsIn(content string) string {
	return containsAny(content, m.NoSlots)
}

// HardFailIn returns the first hard-failure marker found in normalized content.
func (m Markers) HardFailIn(content string) string {
	return containsAny(content, m.HardFail)
}
