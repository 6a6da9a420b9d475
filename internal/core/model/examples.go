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

// param builds one rubric entry for the few-shot example.
func param(value interface{}, score float64) map[string]interface{} {
	return map[string]interface{}{KeyValue: value, KeyConfidenceScore: score}
}

func genre(g, sub string) map[string]interface{} {
	return map[string]interface{}{"genre": g, "subgenre": sub}
}

func exampleRecommendation(song, artist, url, rationale string, params map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		KeySongName:   song,
		KeyArtist:     artist,
		KeyYouTubeURL: url,
		KeyRationale:  rationale,
		KeyParameters: params,
	}
}

// GetExampleAnalysis returns the few-shot example embedded in the analysis
// prompt. Recommendations carry abbreviated parameter sets to keep the prompt
// short; the instructions ask for the full rubric on every song.
func GetExampleAnalysis() Analysis {
	input := map[string]interface{}{
		KeySongName:   "Shook Ones, Pt. II",
		KeyArtist:     "Mobb Deep",
		KeyYouTubeURL: "https://www.youtube.com/watch?v=yoYZf-lBF_U",
		KeyParameters: map[string]interface{}{
			"Intangible Vibe":            param("Gritty, tense, late-night on a dangerous city street.", 1.0),
			GenreParameterName:           param(genre("Hip-Hop", "East Coast Hardcore Hip-Hop"), 1.0),
			"Mood / Tone":                param("Anxious, Aggressive, Menacing", 0.95),
			"Tempo (BPM)":                param("Mid-tempo (approx. 95 BPM)", 1.0),
			"Vocal Style":                param("Aggressive Bars, Gritty Delivery", 0.9),
			"Lyrical Themes":             param("Street life, Survival, Intimidation", 1.0),
			"Instrumentation":            param("Sampled piano loop, Booming 808-style drums, Synthesizer sirens", 0.95),
			"Timbre & Texture":           param("Gritty, Lo-fi, Analog Warmth", 0.9),
			"Rhythm / Groove":            param("Driving, Head-nodding boom-bap groove", 1.0),
			"Occasion / Activity":        param("Intense workout, Focused work", 0.85),
			"Song Structure":             param("Verse-Chorus-Verse-Chorus", 1.0),
			"Dynamic Range":              param("Low (Compressed): Consistently loud and in-your-face.", 0.9),
			"Harmonic Complexity":        param("Simple: Based on a 2-chord sampled loop.", 1.0),
			"Instrumentation Density":    param("Sparse / Minimalist: Just a beat and vocals.", 0.95),
			"Stereo Imaging":             param("Narrow / Mono: Centered and focused.", 0.8),
			"Use of Effects":             param("Minimal; slight reverb on vocals.", 0.9),
			"Era / Decade":               param("90s East Coast Hip-Hop", 1.0),
			"Geographic Origin":          param("Queensbridge, New York City", 1.0),
			"Sampling / Intertextuality": param("Samples Herbie Hancock's 'Jessica' and Quincy Jones' 'Kitty with the Bent Frame'.", 1.0),
		},
	}

	recommendations := []interface{}{
		exampleRecommendation("C.R.E.A.M.", "Wu-Tang Clan", "https://www.youtube.com/watch?v=PBwAxmrE194",
			"Shares a similar gritty, anxious 'Mood / Tone' and is a cornerstone of the same 'Genre / Subgenre'. The melancholic piano sample and boom-bap drums will feel very familiar.",
			map[string]interface{}{
				"Intangible Vibe":  param("Gritty urban struggle, hustling for survival", 0.95),
				GenreParameterName: param(genre("Hip-Hop", "East Coast Hip-Hop"), 1.0),
				"Mood / Tone":      param("Dark, Reflective, Determined", 0.9),
			}),
		exampleRecommendation("Gimme the Loot", "The Notorious B.I.G.", "https://www.youtube.com/watch?v=ZzvL4O3uomg",
			"Matches the aggressive, high-stakes 'Intangible Vibe' and lyrical themes of street survival. The raw vocal delivery and minimalist production are directly comparable.",
			map[string]interface{}{
				"Intangible Vibe":  param("Aggressive street narrative, survival mentality", 0.9),
				GenreParameterName: param(genre("Hip-Hop", "East Coast Hardcore Hip-Hop"), 1.0),
			}),
		exampleRecommendation("The Message", "Grandmaster Flash and the Furious Five", "https://www.youtube.com/watch?v=gYMkEMCHtJ4",
			"Classic hip-hop with similar themes of urban struggle and social commentary. Different era but shares the raw, authentic 'Intangible Vibe' of street life.",
			map[string]interface{}{
				"Intangible Vibe":  param("Urban struggle, social awareness", 0.85),
				GenreParameterName: param(genre("Hip-Hop", "Old School Hip-Hop"), 1.0),
			}),
		exampleRecommendation("NY State of Mind", "Nas", "https://www.youtube.com/watch?v=UKjj4hk0pV4",
			"Iconic East Coast track with vivid street narratives. Shares the dark, introspective mood and boom-bap production style.",
			map[string]interface{}{
				"Intangible Vibe":  param("Gritty NYC streets, introspective", 0.95),
				GenreParameterName: param(genre("Hip-Hop", "East Coast Hip-Hop"), 1.0),
			}),
		exampleRecommendation("Deep Cover", "Dr. Dre ft. Snoop Dogg", "https://www.youtube.com/watch?v=s7d40AgH_Uw",
			"West Coast alternative with similar dark themes. Different coast but shares the menacing vibe and criminal narrative.",
			map[string]interface{}{
				"Intangible Vibe":  param("Dark criminal underworld, menacing", 0.9),
				GenreParameterName: param(genre("Hip-Hop", "West Coast G-Funk"), 1.0),
			}),
		exampleRecommendation("Teardrop", "Massive Attack", "https://www.youtube.com/watch?v=u7K72X4eo_s",
			WildcardMarker+" While from the Trip-Hop genre, this song captures the dark, anxious 'Mood / Tone' of the original. Its atmospheric instrumentation offers a different flavor of the same core feeling.",
			map[string]interface{}{
				"Intangible Vibe":  param("Dark, atmospheric, haunting", 0.85),
				GenreParameterName: param(genre("Electronic", "Trip-Hop"), 1.0),
				"Mood / Tone":      param("Melancholic, Dark, Atmospheric", 0.9),
			}),
	}

	return Analysis{
		KeyDisclaimer:        "This analysis is AI-generated and may contain subjective or estimated information.",
		KeyInputSongAnalysis: input,
		KeyRecommendations:   recommendations,
	}
}

// ExampleSong is a sample input offered to API clients.
type ExampleSong struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetExampleSongs returns the sample inputs served by the examples endpoint.
func GetExampleSongs() []ExampleSong {
	return []ExampleSong{
		{Name: "Lose Yourself by Eminem", Description: "High-energy motivational rap"},
		{Name: "Bohemian Rhapsody by Queen", Description: "Classic rock opera"},
		{Name: "Blinding Lights by The Weeknd", Description: "Modern synth-pop"},
		{Name: "Smells Like Teen Spirit by Nirvana", Description: "Grunge rock anthem"},
		{Name: "https://www.youtube.com/watch?v=_Yhyp-_hX2s", Description: "URL input example"},
	}
}
