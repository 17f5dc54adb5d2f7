package voice

import "fmt"

// Params are the distance-dependent voice properties applied every tick to
// an active voice.
type Params struct {
	Volume float32
	Pitch  float32
}

// Attenuator turns a descriptor and a listener distance into effective voice
// parameters. The curve is a policy choice, so it is pluggable.
type Attenuator interface {
	Attenuate(d Descriptor, distance float64) Params
}

// AttenuatorFunc adapts a function to [Attenuator].
type AttenuatorFunc func(d Descriptor, distance float64) Params

// Attenuate implements [Attenuator].
func (f AttenuatorFunc) Attenuate(d Descriptor, distance float64) Params {
	return f(d, distance)
}

// NoAttenuation applies the descriptor's base volume and pitch regardless of
// distance.
type NoAttenuation struct{}

// Attenuate implements [Attenuator].
func (NoAttenuation) Attenuate(d Descriptor, _ float64) Params {
	return Params{Volume: d.Volume, Pitch: d.Pitch}
}

// LinearClamp fades the volume linearly from full gain at MinDistance to
// silence at MaxDistance.
type LinearClamp struct{}

// Attenuate implements [Attenuator].
func (LinearClamp) Attenuate(d Descriptor, distance float64) Params {
	span := d.MaxDistance - d.MinDistance
	gain := 1.0
	if span > 0 {
		gain = 1 - (distance-d.MinDistance)/span
	} else if distance > d.MaxDistance {
		gain = 0
	}
	return Params{Volume: d.Volume * float32(clamp01(gain)), Pitch: d.Pitch}
}

// InverseClamped is the inverse-distance model with the distance clamped to
// [MinDistance, MaxDistance]. Rolloff scales how quickly the gain drops; zero
// means 1.
type InverseClamped struct {
	Rolloff float64
}

// Attenuate implements [Attenuator].
func (a InverseClamped) Attenuate(d Descriptor, distance float64) Params {
	rolloff := a.Rolloff
	if rolloff <= 0 {
		rolloff = 1
	}
	ref := d.MinDistance
	if ref <= 0 {
		ref = 1
	}
	dist := min(max(distance, ref), max(d.MaxDistance, ref))
	gain := ref / (ref + rolloff*(dist-ref))
	return Params{Volume: d.Volume * float32(clamp01(gain)), Pitch: d.Pitch}
}

// ParseAttenuator returns the attenuator registered under model. Valid models
// are "linear", "inverse" and "none"; the empty string selects "linear".
func ParseAttenuator(model string, rolloff float64) (Attenuator, error) {
	switch model {
	case "", "linear":
		return LinearClamp{}, nil
	case "inverse":
		return InverseClamped{Rolloff: rolloff}, nil
	case "none":
		return NoAttenuation{}, nil
	default:
		return nil, fmt.Errorf("voice: unknown attenuation model %q; valid values: linear, inverse, none", model)
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
