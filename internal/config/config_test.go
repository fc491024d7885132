package config

import (
	"os"
	"reflect"
	"testing"
)

// testOptions mirrors the shape of the CLI options struct.
type testOptions struct {
	Config string `help:"Config file path"`

	StringField string `toml:"test.string_field" env:"STRING_FIELD"`
	BoolField   bool   `toml:"test.bool_field" env:"BOOL_FIELD"`
	IntField    int    `toml:"test.int_field" env:"INT_FIELD"`

	NestedString string `toml:"nested.value" env:"NESTED_VALUE"`
}

func writeTempTOML(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config_*.toml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeTempTOML(t, `
[test]
string_field = "hello world"
bool_field = true
int_field = 42

[nested]
value = "nested value"
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StringField != "hello world" {
		t.Errorf("StringField = %q, want 'hello world'", opts.StringField)
	}
	if !opts.BoolField {
		t.Errorf("BoolField = %v, want true", opts.BoolField)
	}
	if opts.IntField != 42 {
		t.Errorf("IntField = %d, want 42", opts.IntField)
	}
	if opts.NestedString != "nested value" {
		t.Errorf("NestedString = %q, want 'nested value'", opts.NestedString)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("SPOKE_STRING_FIELD", "env string")
	t.Setenv("SPOKE_BOOL_FIELD", "true")
	t.Setenv("SPOKE_INT_FIELD", "123")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StringField != "env string" {
		t.Errorf("StringField = %q, want 'env string'", opts.StringField)
	}
	if !opts.BoolField {
		t.Errorf("BoolField = %v, want true", opts.BoolField)
	}
	if opts.IntField != 123 {
		t.Errorf("IntField = %d, want 123", opts.IntField)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeTempTOML(t, `
[test]
string_field = "toml value"
int_field = 100
`)

	t.Setenv("SPOKE_STRING_FIELD", "env override")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StringField != "env override" {
		t.Errorf("StringField = %q, want 'env override'", opts.StringField)
	}
	// TOML value survives where no env override exists.
	if opts.IntField != 100 {
		t.Errorf("IntField = %d, want 100", opts.IntField)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: "nonexistent_file.toml"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeTempTOML(t, "[test\ninvalid toml syntax\n")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{
				"value": "nested_value",
			},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"level1.nonexistent", nil},
	}

	for _, test := range tests {
		if result := getNestedValue(data, test.path); result != test.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"Port", "port"},
		{"BeaconInterval", "beacon-interval"},
		{"DeviceConfigFile", "device-config-file"},
	}
	for _, tt := range tests {
		if got := fieldNameToFlag(tt.field); got != tt.want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	type target struct {
		StringField string
		BoolField   bool
		IntField    int
	}

	s := &target{}
	v := reflect.ValueOf(s).Elem()

	setFieldValueFromString(v.FieldByName("StringField"), "test string")
	if s.StringField != "test string" {
		t.Errorf("StringField = %q", s.StringField)
	}

	setFieldValueFromString(v.FieldByName("BoolField"), "true")
	if !s.BoolField {
		t.Errorf("BoolField = %v, want true", s.BoolField)
	}

	setFieldValueFromString(v.FieldByName("IntField"), "123")
	if s.IntField != 123 {
		t.Errorf("IntField = %d, want 123", s.IntField)
	}
}
