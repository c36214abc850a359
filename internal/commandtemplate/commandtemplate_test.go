package commandtemplate

import (
	"errors"
	"testing"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name    string
		command string
		args    map[string]string
		want    string
		wantErr error
	}{
		{
			name:    "no placeholders",
			command: "echo hello",
			args:    nil,
			want:    "echo hello",
		},
		{
			name:    "single placeholder",
			command: "echo {{message}}",
			args:    map[string]string{"message": "hi"},
			want:    "echo hi",
		},
		{
			name:    "repeated placeholder",
			command: "cp {{src}} {{dst}} && chmod 644 {{dst}}",
			args:    map[string]string{"src": "a.txt", "dst": "b.txt"},
			want:    "cp a.txt b.txt && chmod 644 b.txt",
		},
		{
			name:    "whitespace inside braces",
			command: "echo {{ name }}",
			args:    map[string]string{"name": "world"},
			want:    "echo world",
		},
		{
			name:    "missing argument",
			command: "echo {{missing}}",
			args:    map[string]string{},
			wantErr: ErrMissingArgument,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.command, tc.args)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Render() error = %v, want %v", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Render() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Render() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("cp {{src}} {{dst}} && chmod 644 {{dst}}")
	want := []string{"src", "dst"}

	if len(got) != len(want) {
		t.Fatalf("Placeholders() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Placeholders()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
