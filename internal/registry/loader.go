package registry

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gbif-norway/bdq-agent/internal/dataset"
	"github.com/gbif-norway/bdq-agent/internal/model"
)

// Column names expected in the test-descriptor source table (§4.A). The
// registry source is "a byte stream yielding the test-descriptor table"
// (§6) — a tabular file with one row per test, these columns among them.
const (
	colTestID      = "test_id"
	colGUID        = "guid"
	colTestType    = "test_type"
	colActedUpon   = "acted_upon"
	colConsulted   = "consulted"
	colParameters  = "parameters"
	colInfoElement = "information_element_class"
	colHandle      = "implementation_handle"
	colIsDefault   = "is_default"

	listSeparator  = ";"
	paramSeparator = "="
)

// Load reads a registry source (a delimiter-separated descriptor table, §4.A)
// and builds a Registry from it. Fails with model.ErrRegistryInvalid if the
// source is missing, malformed, or yields zero descriptors.
func Load(input []byte) (*Registry, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: empty source", model.ErrRegistryInvalid)
	}

	headerLine, _, _ := bytes.Cut(input, []byte("\n"))
	delimiter := dataset.SniffDelimiter(string(headerLine))

	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(input)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	rawHeader, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", model.ErrRegistryInvalid, err)
	}

	header, _ := model.NewHeader(rawHeader)

	descriptors := make([]model.Descriptor, 0, 64) //nolint:mnd // initial capacity guess

	for {
		row, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}

		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRegistryInvalid, rerr)
		}

		values, ok := header.ProjectRow(row)
		if !ok {
			return nil, fmt.Errorf("%w: row has %d fields, header row had %d", model.ErrRegistryInvalid, len(row), header.RawLen())
		}

		d, derr := parseDescriptor(header, values)
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRegistryInvalid, derr)
		}

		descriptors = append(descriptors, d)
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: zero descriptors", model.ErrRegistryInvalid)
	}

	return New(descriptors), nil
}

func parseDescriptor(header *model.Header, values []string) (model.Descriptor, error) {
	get := func(col string) string {
		idx, ok := header.Resolve(col)
		if !ok || idx >= len(values) {
			return ""
		}

		return strings.TrimSpace(values[idx])
	}

	testID := get(colTestID)
	if testID == "" {
		return model.Descriptor{}, fmt.Errorf("missing %s", colTestID)
	}

	handle := get(colHandle)
	if handle == "" {
		return model.Descriptor{}, fmt.Errorf("missing %s for test %q", colHandle, testID)
	}

	testType := model.TestType(get(colTestType))
	if !testType.IsValid() {
		return model.Descriptor{}, fmt.Errorf("invalid %s %q for test %q", colTestType, testType, testID)
	}

	d := model.Descriptor{
		TestID:                  testID,
		TestType:                testType,
		ActedUpon:               splitList(get(colActedUpon)),
		Consulted:               splitList(get(colConsulted)),
		Parameters:              parseParameters(get(colParameters)),
		InformationElementClass: get(colInfoElement),
		GUID:                    get(colGUID),
		Handle:                  handle,
		IsDefault:               strings.EqualFold(get(colIsDefault), "true"),
	}

	return d, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, listSeparator)
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

// parseParameters parses "name=default;name2;name3=default3" into ordered
// Parameters, a parameter with no "=" having no default.
func parseParameters(raw string) []model.Parameter {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, listSeparator)
	out := make([]model.Parameter, 0, len(parts))

	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}

		name, def, hasDefault := strings.Cut(trimmed, paramSeparator)
		out = append(out, model.Parameter{
			Name:       strings.TrimSpace(name),
			Default:    strings.TrimSpace(def),
			HasDefault: hasDefault,
		})
	}

	return out
}
