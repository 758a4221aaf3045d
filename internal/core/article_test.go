package core

import (
	"testing"
	"time"
)

func TestNormalizeDOI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.1000/Example", "10.1000/example"},
		{"https://doi.org/10.1000/example", "10.1000/example"},
		{"http://dx.doi.org/10.1000/EXAMPLE", "10.1000/example"},
		{"doi:10.1000/example", "10.1000/example"},
		{"DOI: 10.1000/example", "10.1000/example"},
		{"  10.1000/example  ", "10.1000/example"},
		{"not-a-doi", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeDOI(c.in); got != c.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizationIdempotent(t *testing.T) {
	dois := []string{"https://doi.org/10.1000/Example", "doi:10.1234/ABC.def"}
	for _, d := range dois {
		once := NormalizeDOI(d)
		twice := NormalizeDOI(once)
		if once != twice {
			t.Errorf("NormalizeDOI not idempotent for %q: %q != %q", d, once, twice)
		}
	}
	pmids := []string{"PMID:12345678", "12345678"}
	for _, p := range pmids {
		once := NormalizePMID(p)
		if twice := NormalizePMID(once); once != twice {
			t.Errorf("NormalizePMID not idempotent for %q", p)
		}
	}
	pmcs := []string{"pmc123456", "PMC 123456", "123456"}
	for _, p := range pmcs {
		once := NormalizePMC(p)
		if twice := NormalizePMC(once); once != twice {
			t.Errorf("NormalizePMC not idempotent for %q", p)
		}
	}
}

func TestNormalizePMID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12345678", "12345678"},
		{"PMID:12345678", "12345678"},
		{"pmid: 12345678", "12345678"},
		{"12345678a", ""},
		{"10.1000/x", ""},
	}
	for _, c := range cases {
		if got := NormalizePMID(c.in); got != c.want {
			t.Errorf("NormalizePMID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePMC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"PMC1234567", "PMC1234567"},
		{"pmc1234567", "PMC1234567"},
		{"1234567", "PMC1234567"},
		{"PMC 1234567", "PMC1234567"},
		{"PMCx", ""},
	}
	for _, c := range cases {
		if got := NormalizePMC(c.in); got != c.want {
			t.Errorf("NormalizePMC(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalKey(t *testing.T) {
	withDOI := Article{DOI: "10.1000/Example", PMID: "123", Title: "Some Title"}
	if got := withDOI.CanonicalKey(); got != "doi:10.1000/example" {
		t.Errorf("DOI key = %q", got)
	}
	withPMID := Article{PMID: "123", Title: "Some Title"}
	if got := withPMID.CanonicalKey(); got != "pmid:123" {
		t.Errorf("PMID key = %q", got)
	}
	titleOnly := Article{Title: "Remimazolam vs. Propofol: a Trial!"}
	if got := titleOnly.CanonicalKey(); got != "title:remimazolamvspropofolatrial" {
		t.Errorf("title key = %q", got)
	}
}

func TestNormalizeTitleKeyTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	key := NormalizeTitleKey(long)
	if len(key) != 80 {
		t.Errorf("expected 80-char key, got %d", len(key))
	}
}

func TestArticleValid(t *testing.T) {
	if (&Article{}).Valid() {
		t.Error("empty article should be invalid")
	}
	if !(&Article{Title: "t"}).Valid() {
		t.Error("title-only article should be valid")
	}
	if !(&Article{PMID: "123"}).Valid() {
		t.Error("identifier-only article should be valid")
	}
	if (&Article{Title: "   "}).Valid() {
		t.Error("whitespace title should be invalid")
	}
}

func TestSetPublicationDateDerivesYear(t *testing.T) {
	var a Article
	a.SetPublicationDate(time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC))
	if a.Year != 2023 {
		t.Errorf("year = %d, want 2023", a.Year)
	}
	if a.PublicationDate == nil || a.PublicationDate.Year() != a.Year {
		t.Error("publication date and year disagree")
	}
}

func TestRecordSource(t *testing.T) {
	var a Article
	now := time.Now()
	a.RecordSource("pubmed", now)
	a.RecordSource("crossref", now)
	a.RecordSource("pubmed", now) // duplicate
	if len(a.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(a.Sources))
	}
	if a.PrimarySource != "pubmed" {
		t.Errorf("primary source = %q, want pubmed", a.PrimarySource)
	}
}

func TestParseYear(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2024-01-15", 2024},
		{"2024 Jan", 2024},
		{"Jan 2024", 2024},
		{"1999", 1999},
		{"garbage", 0},
		{"123", 0},
	}
	for _, c := range cases {
		if got := ParseYear(c.in); got != c.want {
			t.Errorf("ParseYear(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestBibFieldCount(t *testing.T) {
	a := Article{Abstract: "x", Journal: "j", Year: 2020}
	if got := a.BibFieldCount(); got != 3 {
		t.Errorf("BibFieldCount = %d, want 3", got)
	}
}
