package classify

import (
	"testing"

	"github.com/taniwha3/netwatch/internal/models"
)

func TestClassify_Rules(t *testing.T) {
	tests := []struct {
		name      string
		wifi80211 bool
		wantKind  models.InterfaceKind
		wantScore int
	}{
		{"lo", false, models.KindLoopback, 5},
		{"lo0", false, models.KindLoopback, 5},
		{"utun3", false, models.KindVpn, 80},
		{"anpi0", false, models.KindSystemPrivate, 10},
		{"awdl0", false, models.KindSystemPrivate, 10},
		{"bridge0", false, models.KindSystemPrivate, 10},
		{"tailscale0", false, models.KindVpn, 80},
		{"docker0", false, models.KindContainerVirtual, 20},
		{"br-abc123", false, models.KindContainerVirtual, 20},
		{"veth1a2b3c", false, models.KindContainerVirtual, 20},
		{"wlan0", true, models.KindWifi, 90},
		{"en0", true, models.KindWifi, 90},
		{"en0", false, models.KindEthernet, 95},
		{"eth0", false, models.KindEthernet, 95},
		{"Ethernet0", false, models.KindEthernet, 95},
		{"enp0s3", false, models.KindEthernet, 95},
		{"eno1", false, models.KindEthernet, 95},
		{"ens33", false, models.KindEthernet, 95},
		{"enx001122334455", false, models.KindEthernet, 95},
		{"whatever99", false, models.KindUnknown, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Classify(tt.name, nil, tt.wifi80211)
			if rec.Kind != tt.wantKind {
				t.Errorf("Classify(%q): kind = %v, want %v", tt.name, rec.Kind, tt.wantKind)
			}
			if rec.RelevanceScore != tt.wantScore {
				t.Errorf("Classify(%q): score = %d, want %d", tt.name, rec.RelevanceScore, tt.wantScore)
			}
			if rec.Id != models.InterfaceId(tt.name) {
				t.Errorf("Classify(%q): id = %q, want %q", tt.name, rec.Id, tt.name)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	// Invariant 7: classify is a pure function — same inputs, same output.
	addrs := []string{"192.168.1.5"}
	a := Classify("eth0", addrs, false)
	b := Classify("eth0", addrs, false)
	if a != b {
		t.Errorf("Classify is not deterministic: %+v != %+v", a, b)
	}
}

func TestPasses(t *testing.T) {
	important := models.InterfaceRecord{RelevanceScore: 90}
	minor := models.InterfaceRecord{RelevanceScore: 20}

	if !Passes(FilterShowAll, minor, false) {
		t.Error("FilterShowAll should pass everything")
	}
	if !Passes(FilterImportantOnly, important, false) {
		t.Error("FilterImportantOnly should pass score >= 80")
	}
	if Passes(FilterImportantOnly, minor, false) {
		t.Error("FilterImportantOnly should reject score < 80")
	}
	if !Passes(FilterActiveOnly, minor, true) {
		t.Error("FilterActiveOnly should pass when activeDelta is true")
	}
	if Passes(FilterActiveOnly, minor, false) {
		t.Error("FilterActiveOnly should reject when activeDelta is false")
	}
}
