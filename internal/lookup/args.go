package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/intent"
)

// arguments holds a parsed argument object before it is checked against an
// intent's parameters.
type arguments map[string]json.RawMessage

func parseArguments(raw string) (arguments, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var args arguments
	if err := dec.Decode(&args); err != nil {
		return nil, goerr.Wrap(ErrInvalidArguments, "arguments are not a JSON object", goerr.V("arguments", raw), goerr.V("cause", err.Error()))
	}
	if args == nil {
		return nil, goerr.Wrap(ErrInvalidArguments, "arguments are null", goerr.V("arguments", raw))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, goerr.Wrap(ErrInvalidArguments, "trailing data after arguments", goerr.V("arguments", raw))
	}
	return args, nil
}

// validate checks that every required parameter is present with the
// declared type.
func (a arguments) validate(in intent.Intent) error {
	for _, p := range in.Params {
		raw, ok := a[p.Name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if p.Required {
				return goerr.Wrap(ErrInvalidArguments, "missing required parameter", goerr.V("function", in.Name), goerr.V("param", p.Name))
			}
			continue
		}
		var err error
		switch p.Type {
		case intent.TypeString:
			_, err = a.str(p.Name)
		case intent.TypeInteger:
			_, err = a.int(p.Name)
		}
		if err != nil {
			return goerr.Wrap(err, "validating arguments", goerr.V("function", in.Name))
		}
	}
	return nil
}

func (a arguments) str(name string) (string, error) {
	var s string
	if err := json.Unmarshal(a[name], &s); err != nil {
		return "", goerr.Wrap(ErrInvalidArguments, "parameter must be a string", goerr.V("param", name), goerr.V("value", string(a[name])))
	}
	return s, nil
}

// maxExactFloatInt is the largest integer a float64 represents exactly.
const maxExactFloatInt = 1 << 53

func (a arguments) int(name string) (int, error) {
	raw := bytes.TrimSpace(a[name])
	var n json.Number
	// json.Number also accepts quoted numbers; reject those.
	if len(raw) > 0 && raw[0] == '"' {
		return 0, goerr.Wrap(ErrInvalidArguments, "parameter must be an integer", goerr.V("param", name), goerr.V("value", string(raw)))
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, goerr.Wrap(ErrInvalidArguments, "parameter must be an integer", goerr.V("param", name), goerr.V("value", string(a[name])))
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	// Models sometimes emit 2000.0 for an integer field.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactFloatInt {
		return 0, goerr.Wrap(ErrInvalidArguments, "parameter must be an integer", goerr.V("param", name), goerr.V("value", n.String()))
	}
	return int(f), nil
}
