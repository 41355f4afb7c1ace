package normalize

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

func loadResponse(t *testing.T, name string, service mesonet.Service) *mesonet.Response {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	var resp mesonet.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	resp.Service = service
	return &resp
}

func quietNormalizer() *Normalizer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rowsFor(rows []Row, stid, variable string) []Row {
	var out []Row
	for _, r := range rows {
		if r.STID == stid && r.Variable == variable {
			out = append(out, r)
		}
	}
	return out
}

func f64(v float64) *float64 { return &v }
