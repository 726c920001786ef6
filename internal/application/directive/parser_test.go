package directive

import (
	"errors"
	"reflect"
	"testing"

	"github.com/doeshing/autopilot/internal/domain"
)

func TestParsePromptOnly(t *testing.T) {
	d, err := Parse(`{"prompt":"next"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.Prompt != "next" {
		t.Fatalf("Prompt = %q", d.Prompt)
	}
	if !d.Cmd.Empty() || d.HasAsk() {
		t.Fatalf("expected no action, got %+v", d)
	}
}

func TestParseMissingPrompt(t *testing.T) {
	_, err := Parse(`{"cmd":"ls"}`)
	if !errors.Is(err, domain.ErrMissingPrompt) {
		t.Fatalf("Parse() error = %v, want ErrMissingPrompt", err)
	}
	_, err = Parse(`{"cmd":"ls","prompt":"   "}`)
	if !errors.Is(err, domain.ErrMissingPrompt) {
		t.Fatalf("Parse() blank prompt error = %v, want ErrMissingPrompt", err)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "API call limit reached for today."},
		{name: "truncated", input: `{"prompt":"next"`},
		{name: "cmd object", input: `{"cmd":{"run":"ls"},"prompt":"next"}`},
		{name: "cmd numbers", input: `{"cmd":[1,2],"prompt":"next"}`},
		{name: "sleep text", input: `{"prompt":"next","sleep":"later"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, domain.ErrMalformedDirective) {
				t.Fatalf("Parse(%s) error = %v, want ErrMalformedDirective", tt.input, err)
			}
		})
	}
}

func TestParseCommandShapes(t *testing.T) {
	single, err := Parse(`{"cmd":"ls -la","prompt":"next step","description":"listed files"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(single.Cmd.Commands, []string{"ls -la"}) {
		t.Fatalf("Commands = %v", single.Cmd.Commands)
	}
	if single.Description != "listed files" {
		t.Fatalf("Description = %q", single.Description)
	}

	list, err := Parse(`{"cmd":["apt-get update","apt-get install -y nginx"],"prompt":"verify"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(list.Cmd.Commands) != 2 || list.Cmd.Commands[1] != "apt-get install -y nginx" {
		t.Fatalf("Commands = %v", list.Cmd.Commands)
	}
	if list.IsExit() {
		t.Fatal("list is not an exit directive")
	}
}

func TestParseExitAndAsk(t *testing.T) {
	d, err := Parse(`{"cmd":"exit","prompt":"restart"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !d.IsExit() {
		t.Fatal("expected exit directive")
	}

	none, err := Parse(`{"ask":"None","prompt":"next"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if none.HasAsk() {
		t.Fatal(`"None" must not escalate`)
	}

	ask, err := Parse(`{"ask":"please point the DNS record at this host","prompt":"check dns"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !ask.HasAsk() {
		t.Fatal("expected escalation")
	}
}

func TestParseOptionalFields(t *testing.T) {
	d, err := Parse("```json\n{\"prompt\":\"p\",\"files_needed\":[\"/etc/hosts\"],\"notes\":\"port 80 open\",\"sleep\":\"2.5\"}\n```")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(d.FilesNeeded, []string{"/etc/hosts"}) {
		t.Fatalf("FilesNeeded = %v", d.FilesNeeded)
	}
	if d.Notes != "port 80 open" || d.Sleep != 2.5 {
		t.Fatalf("unexpected directive %+v", d)
	}

	n, err := Parse(`{"prompt":"p","sleep":10}`)
	if err != nil || n.Sleep != 10 {
		t.Fatalf("Parse() = %+v, %v", n, err)
	}
}
