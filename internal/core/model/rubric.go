// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"fmt"
	"strings"
)

// Weight is how strongly a rubric parameter steers matching.
type Weight string

const (
	WeightHigh   Weight = "HIGH"
	WeightMedium Weight = "MEDIUM"
	WeightLow    Weight = "LOW"
)

// RubricParameter is one row of the analysis rubric.
type RubricParameter struct {
	Category   string
	Name       string
	Weight     Weight
	Definition string
	Example    string
}

// GenreParameterName is the one parameter whose value is an object.
const GenreParameterName = "Genre / Subgenre"

// Rubric is the fixed list of parameters every song analysis must cover, in
// the order they are presented to the model.
var Rubric = []RubricParameter{
	{"Subjective", "Intangible Vibe", WeightHigh, "The overall feeling, scenario, or aesthetic the song makes you imagine. (The most important guide).", `"Feels like a late-night drive," "Sunday morning coffee shop," "Epic stadium anthem."`},
	{"Core Musical", GenreParameterName, WeightHigh, "The broad and specific stylistic category of the music.", "Genre: Hip-Hop, Subgenre: Punjabi Hip-Hop, Trap"},
	{"Core Musical", "Mood / Tone", WeightHigh, "The primary emotion or feeling the song evokes in the listener.", "Confident, Energetic, Melancholic, Aggressive, Relaxed"},
	{"Core Musical", "Tempo (BPM)", WeightHigh, "The speed of the music, directly related to its energy level.", "Slow (60-80 BPM), Mid-tempo (90-110 BPM), Fast/High-energy (120+ BPM)"},
	{"Core Musical", "Vocal Style", WeightMedium, "The manner in which the vocals are delivered.", "Melodic Rap, Aggressive Bars, Smooth Singing, Spoken Word"},
	{"Core Musical", "Lyrical Themes", WeightMedium, "The central subject matter or narrative of the song's lyrics.", "Success, Power, Heartbreak, Social Commentary, Celebration"},
	{"Core Musical", "Instrumentation", WeightMedium, "The main instruments and sound sources that define the track's sound.", "808 Drums, Synthesizers, Piano Melody, Acoustic Guitar, Tabla"},
	{"Advanced Sonic", "Timbre & Texture", WeightMedium, `The unique quality and character of a sound; its "feel."`, "Gritty, Distorted, Warm, Analog, Clean, Digital, Lo-fi, Hazy"},
	{"Advanced Sonic", "Rhythm / Groove", WeightMedium, "The underlying rhythmic pattern and feel that makes you want to move.", "Syncopated, Straight (Four-on-the-floor), Laid-back, Driving"},
	{"Subjective", "Occasion / Activity", WeightMedium, "The real-world context for which you want the music.", "Workout, Party, Studying, Late-night drive, Relaxing"},
	{"Advanced Sonic", "Song Structure", WeightLow, "The arrangement and flow of the song's sections.", "Verse-Chorus-Verse-Chorus, Progressive, Linear (A-B-C)"},
	{"Advanced Sonic", "Dynamic Range", WeightLow, "The variation between the quietest and loudest parts of the song.", "High Dynamic Range: Quiet verses, explosive chorus. Low (Compressed): Consistently loud."},
	{"Advanced Sonic", "Harmonic Complexity", WeightLow, "The intricacy of the chord progressions used in the song.", "Simple: Based on a 2-4 chord loop. Complex: Evolving chords, jazz harmony."},
	{"Advanced Sonic", "Instrumentation Density", WeightLow, "The number of musical layers happening simultaneously.", `Sparse / Minimalist: Just a beat and vocal. Dense / Layered: A "wall of sound."`},
	{"Advanced Sonic", "Stereo Imaging", WeightLow, "How the sounds are placed in the left-right stereo field.", "Wide: Immersive, with distinct separation. Narrow / Mono: Centered and focused."},
	{"Advanced Sonic", "Use of Effects", WeightLow, "The prominent use of audio effects for creative purposes.", "Cavernous Reverb, Heavy Autotune, Echoing Delay, Tape Saturation"},
	{"Contextual", "Era / Decade", WeightLow, "The time period the music is from or is meant to evoke.", "90s West Coast Hip-Hop, 80s Synth-Pop, Modern Pop"},
	{"Contextual", "Geographic Origin", WeightLow, "The regional sound or cultural influence present in the music.", "UK Drill, Atlanta Trap, Punjabi Folk, Brazilian Bossa Nova"},
	{"Contextual", "Sampling / Intertextuality", WeightLow, "The use of elements from other recordings or cultural works.", `"Samples a 70s Soul track," "References a famous movie line."`},
}

// RubricParameterNames lists the rubric names in order.
func RubricParameterNames() []string {
	out := make([]string, len(Rubric))
	for i, p := range Rubric {
		out[i] = p.Name
	}
	return out
}

// RubricTable renders the rubric as the markdown table embedded in prompts.
func RubricTable() string {
	var b strings.Builder
	b.WriteString("| Category | Name of Parameter | Weightage | Definition | Example |\n")
	b.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
	for _, p := range Rubric {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", p.Category, p.Name, p.Weight, p.Definition, p.Example)
	}
	return b.String()
}

// RubricChecklist renders the "always include" list with priorities.
func RubricChecklist() string {
	var b strings.Builder
	for _, p := range Rubric {
		fmt.Fprintf(&b, "- %s (%s priority)\n", p.Name, p.Weight)
	}
	return b.String()
}

// MissingRubricParameters returns the rubric names absent from a song's
// parameter mapping, in rubric order.
func MissingRubricParameters(song SongAnalysis) []string {
	missing := make([]string, 0)
	for _, p := range Rubric {
		if _, ok := song.Parameters[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	return missing
}
