package dispatch

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// NavigateParams are the parameters of the "navigate" action.
type NavigateParams struct {
	Screen string `param:"screen"`
}

// MediaControlParams are the parameters of the "mediaControl" action.
type MediaControlParams struct {
	Command string `param:"command"`
}

// CollectionParams are the parameters of the "collection" action.
type CollectionParams struct {
	Command string `param:"command"`
	Name    string `param:"name"`
}

// AnalyticsParams are the parameters of the "analytics" action.
type AnalyticsParams struct {
	Command string `param:"command"`
}

// AppParams carry the slots of a compound step (open Safari, search for X).
type AppParams struct {
	App    string `param:"app"`
	Action string `param:"action"`
	Text   string `param:"text"`
}

// DecodeParams decodes a parameter map into P using the "param" struct tag.
// Scalar types are converted weakly ("3" decodes into an int). Unknown keys
// are ignored.
func DecodeParams[P any](params map[string]any) (P, error) {
	var p P
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "param",
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, fmt.Errorf("dispatch: build decoder for %T: %w", p, err)
	}
	if err := dec.Decode(params); err != nil {
		return p, fmt.Errorf("dispatch: decode %T: %w", p, err)
	}
	return p, nil
}

// Handle adapts a handler taking typed parameters into a [Handler]. A
// decoding failure is returned as the handler's error.
func Handle[P any](fn func(ctx context.Context, p P, meta Meta) (Response, error)) Handler {
	return func(ctx context.Context, params map[string]any, meta Meta) (Response, error) {
		p, err := DecodeParams[P](params)
		if err != nil {
			return Response{}, err
		}
		return fn(ctx, p, meta)
	}
}
