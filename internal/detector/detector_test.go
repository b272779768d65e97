package detector

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

// shared avoids rebuilding the lingua models for every test.
var shared = sync.OnceValue(New)

func TestDetectISO_Files(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "empty file", text: ""},
		{name: "blank lines only", text: "\n\n  \t\n"},
		{
			name:   "german notes",
			text:   "# Notizen\n\nDas Treffen findet am Montag statt.\nBitte bringt die Unterlagen mit.\n",
			want:   "de",
			wantOK: true,
		},
		{
			name:   "ukrainian letter",
			text:   "Шановний пане,\n\nдякуємо за ваш лист. Ми відповімо найближчим часом.\n",
			want:   "uk",
			wantOK: true,
		},
		{
			name:   "code is lower case iso 639-1",
			text:   "The quick brown fox jumps over the lazy dog while the farmer watches.",
			want:   "en",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := shared().DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("DetectISO ok = %v, want %v (code %q)", ok, tt.wantOK, got)
			}
			if got != tt.want {
				t.Errorf("DetectISO = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectISO_OnlyHeadOfFileCounts(t *testing.T) {
	head := strings.Repeat("Це речення написане українською мовою. ", 80)
	tail := strings.Repeat("This sentence is written in plain English. ", 400)
	if utf8.RuneCountInString(head) < sampleRunes {
		t.Fatalf("head too short for the test: %d runes", utf8.RuneCountInString(head))
	}

	got, ok := shared().DetectISO(head + tail)
	if !ok || got != "uk" {
		t.Errorf("expected uk from the sampled head, got %q (%v)", got, ok)
	}
}

func TestSample(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "trims surrounding whitespace", text: "\n  short text \n\n", want: "short text"},
		{name: "blank", text: " \n\t", want: ""},
		{name: "exact limit kept", text: strings.Repeat("я", sampleRunes), want: strings.Repeat("я", sampleRunes)},
		{name: "cut on runes not bytes", text: strings.Repeat("я", sampleRunes+5), want: strings.Repeat("я", sampleRunes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sample(tt.text)
			if got != tt.want {
				t.Errorf("sample() returned %d runes, want %d", utf8.RuneCountInString(got), utf8.RuneCountInString(tt.want))
			}
			if !utf8.ValidString(got) {
				t.Error("sample() split a multi-byte rune")
			}
		})
	}
}
