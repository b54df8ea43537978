package semver

import "testing"

func TestParseRelease(t *testing.T) {
	v := Parse("1.0.0")
	if v.Base != [3]int{1, 0, 0} || !v.IsRelease {
		t.Fatalf("unexpected parse: %+v", v)
	}
}

func TestParsePrerelease(t *testing.T) {
	v := Parse("2.1.5-alpha.1")
	if v.Base != [3]int{2, 1, 5} || v.IsRelease {
		t.Fatalf("unexpected parse: %+v", v)
	}
	if v.Prerelease != (Prerelease{Name: "alpha", Number: 1}) {
		t.Fatalf("unexpected prerelease: %+v", v.Prerelease)
	}
}

func TestParseDevSuffix(t *testing.T) {
	v := Parse("1.0.0-beta.2.dev3")
	if v.Prerelease != (Prerelease{Name: "beta", Number: 2}) {
		t.Fatalf("expected dev suffix stripped, got %+v", v.Prerelease)
	}
}

func TestParseDevSuffixWithoutPrerelease(t *testing.T) {
	if Compare(Parse("1.0.0.dev7"), Parse("1.0.0")) != 0 {
		t.Fatalf("expected 1.0.0.dev7 to compare equal to 1.0.0, got %+v vs %+v", Parse("1.0.0.dev7"), Parse("1.0.0"))
	}
}

func TestParseMalformedBase(t *testing.T) {
	v := Parse("not-a-version")
	if v.Base != [3]int{0, 0, 0} {
		t.Fatalf("expected fallback base, got %+v", v.Base)
	}
}

func TestCompareReleaseBeatsPrerelease(t *testing.T) {
	if !LessThan(Parse("1.0.0-beta.3"), Parse("1.0.0")) {
		t.Fatal("expected release to outrank prerelease of same base")
	}
}

func TestComparePrereleaseOrdering(t *testing.T) {
	if !LessThan(Parse("1.0.0-beta.2"), Parse("1.0.0-beta.3")) {
		t.Fatal("expected beta.2 < beta.3")
	}
}

func TestCompareBaseDominates(t *testing.T) {
	if !LessThan(Parse("1.9.9"), Parse("2.0.0")) {
		t.Fatal("expected 1.9.9 < 2.0.0")
	}
}
