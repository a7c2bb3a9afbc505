package match

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Deszcz na betonie", "deszcz na betonie"},
		{"brackets removed", "(prod. Rumak) Deszcz na betonie", "deszcz na betonie"},
		{"square brackets", "Song Title [Official Video]", "song title"},
		{"curly brackets", "Intro {live} Outro", "intro outro"},
		{"noise tokens", "Artist - Track (Official Video) LYRICS HD", "artist track"},
		{"feat with dot", "Track feat. Somebody", "track somebody"},
		{"ft without dot", "Track ft Somebody", "track somebody"},
		{"produced by", "Banger produced by Producer", "banger producer"},
		{"remastered", "Old Song Remastered", "old song"},
		{"punctuation to space", "Deszcz,na!betonie?", "deszcz na betonie"},
		{"unicode kept", "Żółć 123 naïve", "żółć 123 naïve"},
		{"whitespace collapsed", "  a \t b \n c  ", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Deszcz na betonie!",
		"(prod. Rumak) Deszcz na betonie",
		"Taco Hemingway feat. Dawid Podsiadło — Południe [Official Audio] HD",
		"ŚĆŻŹ mixed CASE",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestUnified_TitleAndArtistAlwaysMatch(t *testing.T) {
	targets := []struct{ title, artist string }{
		{"Deszcz na betonie", "Taco Hemingway"},
		{"Bohemian Rhapsody", "Queen"},
		{"Tamagotchi", "Sanah"},
		{"99 Luftballons", "Nena"},
	}
	for _, tgt := range targets {
		if !Unified(tgt.title, tgt.title, tgt.artist) {
			t.Errorf("Unified(title=%q) = false, want true", tgt.title)
		}
		if !Unified(tgt.artist, tgt.title, tgt.artist) {
			t.Errorf("Unified(artist=%q) = false, want true", tgt.artist)
		}
	}
}

func TestUnified(t *testing.T) {
	tests := []struct {
		name          string
		guess         string
		title, artist string
		want          bool
	}{
		{"empty guess", "", "Title", "Artist", false},
		{"whitespace guess", "  !!! ", "Title", "Artist", false},
		{"bracketed target title", "Deszcz na betonie!", "(prod. Rumak) Deszcz na betonie", "Taco Hemingway", true},
		{"case insensitive", "DESZCZ NA BETONIE", "Deszcz na betonie", "Taco Hemingway", true},
		{"punctuation inside tokens", "de.szcz na bet,onie", "Deszcz na betonie", "Taco Hemingway", true},
		{"guess with extra words", "this must be Bohemian Rhapsody", "Bohemian Rhapsody", "Queen", true},
		{"close misspelling via dice", "bohemian rapsody", "Bohemian Rhapsody", "Queen", true},
		{"unrelated", "smooth criminal", "Bohemian Rhapsody", "Queen", false},
		{"artist guessed", "queen", "Bohemian Rhapsody", "Queen", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unified(tt.guess, tt.title, tt.artist); got != tt.want {
				t.Errorf("Unified(%q, %q, %q) = %v, want %v",
					tt.guess, tt.title, tt.artist, got, tt.want)
			}
		})
	}
}

func TestDetailed(t *testing.T) {
	tests := []struct {
		name                     string
		guessArtist, guessTitle  string
		targetArtist, targetTitle string
		wantArtist, wantTitle    bool
	}{
		{
			name:        "both sides exact",
			guessArtist: "Taco Hemingway", guessTitle: "Deszcz na betonie",
			targetArtist: "Taco Hemingway", targetTitle: "Deszcz na betonie",
			wantArtist: true, wantTitle: true,
		},
		{
			name:        "combined guess satisfies both sides",
			guessArtist: "", guessTitle: "Taco Hemingway Deszcz na betonie",
			targetArtist: "Taco Hemingway", targetTitle: "Deszcz na betonie",
			wantArtist: true, wantTitle: true,
		},
		{
			name:        "title only",
			guessArtist: "", guessTitle: "deszcz na betonie",
			targetArtist: "Taco Hemingway", targetTitle: "Deszcz na betonie",
			wantArtist: false, wantTitle: true,
		},
		{
			name:        "artist only",
			guessArtist: "queen", guessTitle: "some other song",
			targetArtist: "Queen", targetTitle: "Bohemian Rhapsody",
			wantArtist: true, wantTitle: false,
		},
		{
			name:        "stripped title when artist embedded in title",
			guessArtist: "Nena", guessTitle: "99 Luftballons",
			targetArtist: "Nena", targetTitle: "Nena - 99 Luftballons",
			wantArtist: true, wantTitle: true,
		},
		{
			name:        "both empty",
			guessArtist: "", guessTitle: "",
			targetArtist: "Queen", targetTitle: "Bohemian Rhapsody",
			wantArtist: false, wantTitle: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detailed(tt.guessArtist, tt.guessTitle, tt.targetArtist, tt.targetTitle)
			if got.ArtistCorrect != tt.wantArtist || got.TitleCorrect != tt.wantTitle {
				t.Errorf("Detailed() = {artist:%v title:%v}, want {artist:%v title:%v}",
					got.ArtistCorrect, got.TitleCorrect, tt.wantArtist, tt.wantTitle)
			}
		})
	}
}

func TestDice(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"a", "a", 1},
		{"a", "b", 0},
		{"night", "night", 1},
		{"night", "nacht", 0.25},
	}
	for _, tt := range tests {
		if got := Dice(tt.a, tt.b); got != tt.want {
			t.Errorf("Dice(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDice_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"bohemian rhapsody", "bohemian rapsody"},
		{"deszcz na betonie", "taco hemingway"},
	}
	for _, p := range pairs {
		if Dice(p[0], p[1]) != Dice(p[1], p[0]) {
			t.Errorf("Dice(%q, %q) not symmetric", p[0], p[1])
		}
	}
}
