package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "marathon distance", in: "42.195 km", want: []string{Marathon}},
		{name: "marathon with comma", in: "42,2 km", want: []string{Marathon}},
		{name: "half marathon distance", in: "21.1 km", want: []string{HalfMarathon}},
		{name: "plain km", in: "10 km", want: []string{"10 km"}},
		{name: "no trailing decimal", in: "10.0km", want: []string{"10 km"}},
		{name: "fractional km", in: "5,5 km", want: []string{"5.5 km"}},
		{name: "slash list", in: "5/10/21,1 km", want: []string{"5 km", "10 km", HalfMarathon}},
		{name: "multiple mentions", in: "bieg na 10 km oraz 5 km, nordic walking 5 km", want: []string{"10 km", "5 km"}},
		{name: "ultra suppresses km labels", in: "Ultramaraton 100 km", want: []string{UltraMarathon}},
		{name: "ultra hyphenated", in: "ULTRA-maraton górski 65km", want: []string{UltraMarathon}},
		{name: "ultra keeps marathon tolerance", in: "ultra 80 km, maraton 42,195 km", want: []string{UltraMarathon, Marathon}},
		{name: "half word", in: "Półmaraton Warszawski", want: []string{HalfMarathon}},
		{name: "half word ascii", in: "Polmaraton nocny", want: []string{HalfMarathon}},
		{name: "half word english", in: "Half Marathon", want: []string{HalfMarathon}},
		{name: "half word and km", in: "półmaraton 21,0975 km i 10 km", want: []string{HalfMarathon, "10 km"}},
		{name: "bare marathon", in: "Maraton Warszawski", want: []string{Marathon}},
		{name: "bare marathon english", in: "Cracovia Marathon", want: []string{Marathon}},
		{name: "bare ultra only", in: "Ultramaraton Bieszczadzki", want: []string{UltraMarathon}},
		{name: "bare marathon ignored with km", in: "Maraton rodzinny 3 km", want: []string{"3 km"}},
		{name: "nothing", in: "bieg charytatywny", want: []string{}},
		{name: "empty", in: "", want: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestLabelTolerances(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Marathon, Label(42.49))
	assert.Equal(t, "42.6 km", Label(42.6))
	assert.Equal(t, HalfMarathon, Label(20.9))
	assert.Equal(t, "21.5 km", Label(21.5))
	assert.Equal(t, "100 km", Label(100))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	got := Merge([]string{"10 km", Marathon}, []string{Marathon, HalfMarathon, "10 km"})
	assert.Equal(t, []string{"10 km", Marathon, HalfMarathon}, got)
	assert.Equal(t, []string{}, Merge(nil, nil))
}
