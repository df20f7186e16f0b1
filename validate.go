package lobby

import (
	stdjson "encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxRoomConnections is the ceiling for a room's `maxConnections`
// option when the server configuration does not override it.
const DefaultMaxRoomConnections = 1000

var roomIDRegexp = regexp.MustCompile(`^[a-z0-9]{1,12}$`)

// optionsValidator checks room ids and room options before any registry
// entry is constructed from them. It reports the first violation only and
// never mutates registry state.
type optionsValidator struct {
	validate *validator.Validate
	ceiling  int
	// the Var tag for maxConnections, built once against the ceiling.
	connectionsTag string
}

func newOptionsValidator(ceiling int) *optionsValidator {
	if ceiling <= 0 {
		ceiling = DefaultMaxRoomConnections
	}

	return &optionsValidator{
		validate:       validator.New(),
		ceiling:        ceiling,
		connectionsTag: "min=1,max=" + strconv.Itoa(ceiling),
	}
}

// RoomID reports whether "id" is an acceptable room identifier.
func (v *optionsValidator) RoomID(id string) error {
	if !roomIDRegexp.MatchString(id) {
		return errors.New("room id must be 1 to 12 lowercase alphanumeric characters")
	}

	return nil
}

// roomOptionsIn is the partial, wire-side shape of RoomOptions.
// Pointers distinguish an absent field from its zero value.
type roomOptionsIn struct {
	MaxConnections *int                   `json:"maxConnections"`
	Public         *bool                  `json:"public"`
	Meta           map[string]interface{} `json:"meta"`
}

// RoomOptions decodes a partial options payload, fills the defaults and
// bounds-checks the rest. Unknown fields are dropped, a missing payload
// is fully defaulted.
func (v *optionsValidator) RoomOptions(raw stdjson.RawMessage) (RoomOptions, error) {
	opts := RoomOptions{MaxConnections: v.ceiling}

	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}

	var in roomOptionsIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return RoomOptions{}, fmt.Errorf("room options are malformed: %w", err)
	}

	if in.MaxConnections != nil {
		if err := v.validate.Var(*in.MaxConnections, v.connectionsTag); err != nil {
			return RoomOptions{}, firstIssue("maxConnections", err)
		}

		opts.MaxConnections = *in.MaxConnections
	}

	if in.Public != nil {
		opts.Public = *in.Public
	}

	opts.Meta = in.Meta

	return opts, nil
}

// firstIssue surfaces the first reported violation as a plain error,
// a violation without any text becomes ErrUnknown so a failed
// acknowledgement is never empty.
func firstIssue(field string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		if len(verrs) == 0 {
			return ErrUnknown
		}

		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%s does not satisfy '%s=%s'", field, fe.Tag(), fe.Param())
		}

		return fmt.Errorf("%s does not satisfy '%s'", field, fe.Tag())
	}

	if err == nil || err.Error() == "" {
		return ErrUnknown
	}

	return err
}
