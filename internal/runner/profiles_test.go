package runner

import (
	"reflect"
	"testing"

	"github.com/forgebench/forgebench/internal/scenario"
)

func TestAllProfilesValidate(t *testing.T) {
	for _, name := range ProfileNames() {
		cfg, err := Profile(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestProfileNamesSorted(t *testing.T) {
	want := []string{
		ProfileConcurrency,
		ProfileEndurance,
		ProfileHighLoad,
		ProfileResourceExhaustion,
		ProfileSpike,
	}
	if got := ProfileNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v", got)
	}
}

func TestHighLoadProfileShape(t *testing.T) {
	cfg, err := Profile(ProfileHighLoad)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TargetLoad.ConcurrentUsers != 100 {
		t.Errorf("users = %d", cfg.TargetLoad.ConcurrentUsers)
	}
	if cfg.TargetLoad.RequestsPerSecond != 50 {
		t.Errorf("rps = %v", cfg.TargetLoad.RequestsPerSecond)
	}
	if cfg.DurationMs != 300000 || cfg.RampUpTimeMs != 60000 {
		t.Errorf("duration = %d, ramp = %d", cfg.DurationMs, cfg.RampUpTimeMs)
	}

	weights := make([]int, 0, len(cfg.Scenarios))
	for _, s := range cfg.Scenarios {
		weights = append(weights, s.Weight)
	}
	if !reflect.DeepEqual(weights, []int{40, 30, 30}) {
		t.Errorf("weights = %v", weights)
	}
}

func TestSpikeProfileDistribution(t *testing.T) {
	cfg, err := Profile(ProfileSpike)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TargetLoad.Distribution != scenario.DistSpike {
		t.Errorf("distribution = %q", cfg.TargetLoad.Distribution)
	}
}

func TestProfileReturnsCopies(t *testing.T) {
	a, _ := Profile(ProfileHighLoad)
	a.TargetLoad.ConcurrentUsers = 1

	b, _ := Profile(ProfileHighLoad)
	if b.TargetLoad.ConcurrentUsers != 100 {
		t.Error("profile mutation leaked between calls")
	}
}

func TestUnknownProfile(t *testing.T) {
	if _, err := Profile("warp-speed"); err == nil {
		t.Error("expected error")
	}
}
