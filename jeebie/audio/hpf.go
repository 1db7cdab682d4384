package audio

// highPassFilter approximates the DC-blocking capacitor real hardware has
// between each DAC and the mixer: without it, a channel that's parked at a
// nonzero DAC output (e.g. DAC on, channel silent) would leave a constant
// offset sitting in the mix forever. A one-pole high-pass filter bleeds that
// offset back toward zero instead.
type highPassFilter struct {
	capacitor float64
}

// hpfCharge sets how slowly the filter leaks toward zero; closer to 1 means
// slower decay. This value approximates the real capacitor's time constant
// at a 44.1kHz host sample rate.
const hpfCharge = 0.999958

// Apply filters one sample and returns the output, updating internal state.
func (f *highPassFilter) Apply(in float64) float64 {
	out := in - f.capacitor
	f.capacitor = in - out*hpfCharge
	return out
}
