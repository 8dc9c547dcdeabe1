package handler

import (
	"errors"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

var errTrailingData = errors.New("unexpected data after JSON value")

// JSONSerializer plugs goccy/go-json into echo. Request bodies are decoded
// with UseNumber so integer ids are not routed through float64, and must
// hold exactly one JSON value.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(i); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}
