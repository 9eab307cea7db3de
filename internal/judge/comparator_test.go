package judge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompareStrict(t *testing.T) {
	a := writeTemp(t, "3\n")
	b := writeTemp(t, "3\n")
	got, err := compareStrict(a, b)
	if err != nil || !got.Accepted {
		t.Errorf("compareStrict exact match should accept, got %+v err %v", got, err)
	}

	c := writeTemp(t, "3 \n")
	got2, _ := compareStrict(a, c)
	if got2.Accepted {
		t.Error("compareStrict should reject trailing whitespace difference")
	}
}

func TestCompareStandard(t *testing.T) {
	a := writeTemp(t, "3\n")
	b := writeTemp(t, "3 \n\n\n")
	got, err := compareStandard(b, a)
	if err != nil || !got.Accepted {
		t.Errorf("compareStandard should ignore trailing whitespace/blank lines, got %+v err %v", got, err)
	}

	c := writeTemp(t, "4\n")
	got2, _ := compareStandard(c, a)
	if got2.Accepted {
		t.Error("compareStandard should reject differing content")
	}
}

func TestNormalizeStandardCRLF(t *testing.T) {
	got := normalizeStandard("3 \r\n4\r\n\r\n")
	want := "3\n4"
	if got != want {
		t.Errorf("normalizeStandard = %q, want %q", got, want)
	}
}

func TestCompareSPJMissingHelper(t *testing.T) {
	answer := writeTemp(t, "\n")
	got, err := compareSPJ(context.Background(), answer, answer, answer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.SPJError {
		t.Error("expected SPJError when helper line is empty")
	}
}
