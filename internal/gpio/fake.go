package gpio

import "errors"

// FakeBoard is a test double that returns scripted sensor readings and
// records relay commands.
type FakeBoard struct {
	// Samples contains scripted readings, one value per sensor.
	// Each call to Read() consumes the next sample.
	Samples [][]int

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	PumpOut   *FakeOutput
	ValveOuts []*FakeOutput
}

// NewFakeBoard creates a FakeBoard with the given number of valves and samples.
func NewFakeBoard(valves int, samples [][]int) *FakeBoard {
	b := &FakeBoard{Samples: samples, PumpOut: &FakeOutput{}}
	for i := 0; i < valves; i++ {
		b.ValveOuts = append(b.ValveOuts, &FakeOutput{})
	}
	return b
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (b *FakeBoard) Read() ([]int, error) {
	if b.ReadError != nil {
		return nil, b.ReadError
	}

	if len(b.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := b.Samples[b.index]
	if b.index < len(b.Samples)-1 {
		b.index++
	}

	out := make([]int, len(sample))
	copy(out, sample)
	return out, nil
}

// Pump returns the fake pump relay.
func (b *FakeBoard) Pump() Output {
	return b.PumpOut
}

// Valve returns the fake valve relay i.
func (b *FakeBoard) Valve(i int) Output {
	return b.ValveOuts[i]
}

// Close switches every relay off and marks the board as closed.
func (b *FakeBoard) Close() error {
	b.PumpOut.State = false
	for _, v := range b.ValveOuts {
		v.State = false
	}
	b.Closed = true
	return nil
}

// FakeOutput records every Set call.
type FakeOutput struct {
	Sets     []bool
	State    bool
	SetError error
}

// Set records active and updates State unless SetError is set.
func (o *FakeOutput) Set(active bool) error {
	o.Sets = append(o.Sets, active)
	if o.SetError != nil {
		return o.SetError
	}
	o.State = active
	return nil
}
