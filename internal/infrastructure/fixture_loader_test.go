package infrastructure

import (
	"os"
	"path/filepath"
	"testing"
)

const yamlFixture = `records:
  - day: "Jun 1, 2025"
    media_source: Google
    campaign: wolt_1
    cost: 10
    impressions: 10
    clicks: 30
    apps: "Wolt iOS"
  - day: "Jun 2, 2025"
    media_source: Google
    campaign: wolt_1
    cost: 10
    impressions: 10
    clicks: 40
    apps: "Wolt iOS, Wolt Android"
`

const tomlFixture = `[[records]]
day = "2025-06-01"
media_source = "TikTok"
campaign = "wolt_2"
cost = 20.0
impressions = 150
clicks = 100
apps = "Wolt Android"
`

const jsonFixture = `{"records": [
  {"day": "2025-06-01", "media_source": "TikTok", "campaign": "wolt_2", "cost": 20, "impressions": 150, "clicks": 100, "apps": "Wolt Android"},
  {"day": "2025-06-02", "media_source": "TikTok", "campaign": "wolt_2", "cost": 20.5, "impressions": 100, "clicks": 0, "apps": "Wolt Android"}
]}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadSpendFixture_Formats(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		content   string
		wantCount int
		wantCost  float64
	}{
		{"yaml", "spend.yaml", yamlFixture, 2, 20},
		{"yml", "spend.yml", yamlFixture, 2, 20},
		{"toml", "spend.toml", tomlFixture, 1, 20},
		{"json", "spend.json", jsonFixture, 2, 40.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := LoadSpendFixture(writeFixture(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadSpendFixture: %v", err)
			}
			if len(records) != tt.wantCount {
				t.Fatalf("loaded %d records, want %d", len(records), tt.wantCount)
			}
			var cost float64
			for _, r := range records {
				cost += r.Cost
			}
			if cost != tt.wantCost {
				t.Fatalf("cost = %v, want %v", cost, tt.wantCost)
			}
		})
	}
}

func TestLoadSpendFixture_YAMLFields(t *testing.T) {
	records, err := LoadSpendFixture(writeFixture(t, "spend.yaml", yamlFixture))
	if err != nil {
		t.Fatalf("LoadSpendFixture: %v", err)
	}

	r := records[1]
	if r.Day != "Jun 2, 2025" || r.MediaSource != "Google" || r.Campaign != "wolt_1" || r.Clicks != 40 || r.Apps != "Wolt iOS, Wolt Android" {
		t.Fatalf("record = %+v", r)
	}
}

func TestLoadSpendFixture_Errors(t *testing.T) {
	if _, err := LoadSpendFixture(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	if _, err := LoadSpendFixture(t.TempDir()); err == nil {
		t.Fatalf("expected an error for a directory")
	}
	if _, err := LoadSpendFixture(writeFixture(t, "spend.csv", "day,cost\n")); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
	if _, err := LoadSpendFixture(writeFixture(t, "spend.json", "{")); err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
}

func TestLoadSpendFixture_SeedFile(t *testing.T) {
	records, err := LoadSpendFixture(filepath.Join("..", "..", "data", "spend_records.yaml"))
	if err != nil {
		t.Fatalf("LoadSpendFixture: %v", err)
	}
	if len(records) != 16 {
		t.Fatalf("seed has %d records, want 16", len(records))
	}
}
