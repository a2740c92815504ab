package probespec

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"
)

//go:embed schema.yaml
var schemaDoc []byte

var kindSchemas *openapi3.T

func init() {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(schemaDoc)
	if err != nil {
		panic(fmt.Sprintf("probespec: embedded schema failed to load: %v", err))
	}
	kindSchemas = doc
}

// ValidationError reports a single field-pathed validation failure.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// rawProbe is the wire shape of a probe spec before kind-specific decoding.
type rawProbe struct {
	Kind KindTag         `json:"kind"`
	Body json.RawMessage `json:"-"`
}

// Parse validates raw and returns the typed ProbeSpec, or a *ValidationError
// describing the first failure found. Parse never mutates defaults into the
// result; default values (e.g. port protocol "tcp") are applied at
// evaluation time, not here.
func Parse(raw json.RawMessage) (ProbeSpec, error) {
	var discriminator struct {
		Kind KindTag `json:"kind"`
	}
	if err := json.Unmarshal(raw, &discriminator); err != nil {
		return ProbeSpec{}, &ValidationError{Message: "malformed probe spec JSON: " + err.Error()}
	}
	if discriminator.Kind == "" {
		return ProbeSpec{}, &ValidationError{Path: "/kind", Message: "missing required field \"kind\""}
	}

	schemaRef, ok := kindSchemas.Components.Schemas[string(discriminator.Kind)]
	if !ok {
		return ProbeSpec{}, &ValidationError{Path: "/kind", Message: fmt.Sprintf("unknown probe kind %q", discriminator.Kind)}
	}

	// Validate the body (everything but "kind") against the kind's schema.
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ProbeSpec{}, &ValidationError{Message: "malformed probe spec JSON: " + err.Error()}
	}
	delete(body, "kind")

	if err := schemaRef.Value.VisitJSON(body); err != nil {
		return ProbeSpec{}, toValidationError(err)
	}

	spec := ProbeSpec{Kind: discriminator.Kind}
	var decodeErr error
	switch discriminator.Kind {
	case KindFileContent:
		spec.FileContent = new(FileContentSpec)
		decodeErr = decodeBody(body, spec.FileContent)
	case KindFileExists:
		spec.FileExists = new(FileExistsSpec)
		decodeErr = decodeBody(body, spec.FileExists)
	case KindService:
		spec.Service = new(ServiceSpec)
		decodeErr = decodeBody(body, spec.Service)
	case KindPort:
		spec.Port = new(PortSpec)
		decodeErr = decodeBody(body, spec.Port)
	case KindTCPPing:
		spec.TCPPing = new(TCPPingSpec)
		decodeErr = decodeBody(body, spec.TCPPing)
	case KindK8sNodesReady:
		spec.K8sNodesReady = new(K8sNodesReadySpec)
		decodeErr = decodeBody(body, spec.K8sNodesReady)
	case KindK8sEndpointsNonEmpty:
		spec.K8sEndpoints = new(K8sEndpointsNonEmptySpec)
		decodeErr = decodeBody(body, spec.K8sEndpoints)
	case KindCommand:
		spec.Command = new(CommandSpec)
		decodeErr = decodeBody(body, spec.Command)
	case KindHTTP:
		spec.HTTP = new(HTTPSpec)
		decodeErr = decodeBody(body, spec.HTTP)
	default:
		return ProbeSpec{}, &ValidationError{Path: "/kind", Message: fmt.Sprintf("unhandled probe kind %q", discriminator.Kind)}
	}
	if decodeErr != nil {
		return ProbeSpec{}, errors.Wrap(decodeErr, "probespec: decoding validated body")
	}

	return spec, nil
}

func decodeBody(body map[string]any, dst any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// toValidationError converts a kin-openapi schema validation failure into a
// ValidationError carrying a JSON-pointer-shaped field path.
func toValidationError(err error) *ValidationError {
	schemaErr, ok := err.(*openapi3.SchemaError)
	if !ok {
		return &ValidationError{Message: err.Error()}
	}
	path := "/" + strings.Join(schemaErr.JSONPointer(), "/")
	if path == "/" {
		path = ""
	}
	return &ValidationError{Path: path, Message: schemaErr.Reason}
}
