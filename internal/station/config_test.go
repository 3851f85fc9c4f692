package station

import "testing"

func TestConfigEqual(t *testing.T) {
	base := Config{Flow: FlowSerial, Block: Blocking, Select: SelectAll, Restore: RestoreToGrandCentral, Prescale: 1, SelectVector: []int32{1, 2, 3}}
	same := base
	same.SelectVector = []int32{1, 2, 3}
	if !base.Equal(same) {
		t.Fatal("identical configs (including select vector contents) must compare equal")
	}

	diffPrescale := base
	diffPrescale.Prescale = 2
	if base.Equal(diffPrescale) {
		t.Fatal("differing prescale must not compare equal")
	}

	diffVectorLen := base
	diffVectorLen.SelectVector = []int32{1, 2}
	if base.Equal(diffVectorLen) {
		t.Fatal("differing select vector length must not compare equal")
	}

	diffVectorContent := base
	diffVectorContent.SelectVector = []int32{1, 2, 9}
	if base.Equal(diffVectorContent) {
		t.Fatal("differing select vector contents must not compare equal")
	}
}

func TestValidForParallelGroup(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"valid", Config{Flow: FlowParallel, Block: Blocking, Prescale: 1, Restore: RestoreToGrandCentral}, true},
		{"wrong flow", Config{Flow: FlowSerial, Block: Blocking, Prescale: 1, Restore: RestoreToGrandCentral}, false},
		{"nonblocking", Config{Flow: FlowParallel, Block: NonBlocking, Prescale: 1, Restore: RestoreToGrandCentral}, false},
		{"prescaled", Config{Flow: FlowParallel, Block: Blocking, Prescale: 2, Restore: RestoreToGrandCentral}, false},
		{"restore to_input", Config{Flow: FlowParallel, Block: Blocking, Prescale: 1, Restore: RestoreToInput}, false},
	}
	for _, c := range cases {
		if got := c.cfg.ValidForParallelGroup(); got != c.want {
			t.Errorf("%s: ValidForParallelGroup() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCompatibleWithHead(t *testing.T) {
	rrobinHead := Config{Select: SelectRRobin}
	if (Config{Select: SelectEqualCue}).CompatibleWithHead(rrobinHead) {
		t.Fatal("a distributing head requires every member to share its select mode")
	}
	if !(Config{Select: SelectRRobin}).CompatibleWithHead(rrobinHead) {
		t.Fatal("a member sharing the head's rrobin select mode must be compatible")
	}

	allHead := Config{Select: SelectAll}
	if !(Config{Select: SelectMatch}).CompatibleWithHead(allHead) {
		t.Fatal("a non-distributing head (all/match) imposes no select-mode constraint on members")
	}
}
