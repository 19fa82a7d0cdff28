package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVTTToSRT_SingleCue(t *testing.T) {
	vtt := "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nHello"
	want := "1\n00:00:01,000 --> 00:00:02,500\nHello\n"

	assert.Equal(t, want, VTTToSRT(vtt))
}

func TestVTTToSRT_MultipleCues(t *testing.T) {
	vtt := `WEBVTT

NOTE generated by encoder

00:00:01.000 --> 00:00:02.500
First line
Second line

00:00:03.000 --> 00:00:04.000
Next cue
`
	want := "1\n00:00:01,000 --> 00:00:02,500\nFirst line\nSecond line\n" +
		"\n" +
		"2\n00:00:03,000 --> 00:00:04,000\nNext cue\n"

	assert.Equal(t, want, VTTToSRT(vtt))
}

func TestVTTToSRT_BackToBackCues(t *testing.T) {
	vtt := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nA\n00:00:02.000 --> 00:00:03.000\nB\n"
	want := "1\n00:00:01,000 --> 00:00:02,000\nA\n\n2\n00:00:02,000 --> 00:00:03,000\nB\n"

	assert.Equal(t, want, VTTToSRT(vtt))
}

func TestVTTToSRT_NoCues(t *testing.T) {
	assert.Empty(t, VTTToSRT("WEBVTT\n\nNOTE nothing here\n"))
	assert.Empty(t, VTTToSRT(""))
	assert.Empty(t, VTTToSRT("random text without timestamps"))
}
