package catalog

import "testing"

func TestHostForRegion(t *testing.T) {
	c := New()
	host, err := c.HostForRegion("EUW")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "euw1.api.riotgames.com" {
		t.Errorf("got host %q", host)
	}
}

func TestHostForRegionUnknown(t *testing.T) {
	c := New()
	if _, err := c.HostForRegion("MOON"); err == nil {
		t.Fatal("expected unknown-region error, got nil")
	}
}

func TestPlatformForRegionRoundTrip(t *testing.T) {
	c := New()
	regions := []string{"BR", "EUNE", "EUW", "JP", "KR", "LAN", "LAS", "NA", "OCE", "TR", "RU", "PBE"}
	for _, r := range regions {
		platform, err := c.PlatformForRegion(r)
		if err != nil {
			t.Fatalf("PlatformForRegion(%s): %v", r, err)
		}
		gotRegion, err := c.RegionForPlatform(platform)
		if err != nil {
			t.Fatalf("RegionForPlatform(%s): %v", platform, err)
		}
		if gotRegion != r {
			t.Errorf("round trip for %s produced %s", r, gotRegion)
		}
	}
}

func TestNA1BothPlatformCodes(t *testing.T) {
	c := New()
	for _, p := range []string{"NA1", "NA"} {
		region, err := c.RegionForPlatform(p)
		if err != nil {
			t.Fatalf("RegionForPlatform(%s): %v", p, err)
		}
		if region != "NA" {
			t.Errorf("RegionForPlatform(%s) = %s, want NA", p, region)
		}
	}
}

func TestRegionalHostForRegionUnknown(t *testing.T) {
	if _, err := RegionalHostForRegion("MOON"); err == nil {
		t.Fatal("expected unknown-region error, got nil")
	}
}
