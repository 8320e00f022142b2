package extract

import "testing"

func TestStudentNameLabelledField(t *testing.T) {
	t.Parallel()

	text := "Universidade Federal\nNome: João da Silva\nCurso de Engenharia"
	if got := StudentName(text); got != "João Da Silva" {
		t.Fatalf("StudentName() = %q, want %q", got, "João Da Silva")
	}
}

func TestStudentNamePrefersMoreWords(t *testing.T) {
	t.Parallel()

	// Both candidates validate; the three-word name wins the tie-break.
	text := "Name: Ana Silva\nGraduate: Maria Clara Souza\n"
	if got := StudentName(text); got != "Maria Clara Souza" {
		t.Fatalf("StudentName() = %q, want %q", got, "Maria Clara Souza")
	}
}

func TestStudentNameDoesNotFuseAcrossLines(t *testing.T) {
	t.Parallel()

	// "Pedro Lima" and the next line's heading must stay separate
	// candidates; a fused run would hit the stoplist and leave nothing.
	text := "Pedro Lima\nCurso De Engenharia\n"
	if got := StudentName(text); got != "Pedro Lima" {
		t.Fatalf("StudentName() = %q, want %q", got, "Pedro Lima")
	}
}

func TestStudentNameStoplistFiltersBoilerplate(t *testing.T) {
	t.Parallel()

	text := "Name: Ana Silva\nCurso Superior\n"
	if got := StudentName(text); got != "Ana Silva" {
		t.Fatalf("StudentName() = %q, want %q", got, "Ana Silva")
	}
}

func TestStudentNameAllCaps(t *testing.T) {
	t.Parallel()

	text := "confere o presente diploma a\nPEDRO HENRIQUE ALVES\npelo êxito"
	if got := StudentName(text); got != "Pedro Henrique Alves" {
		t.Fatalf("StudentName() = %q, want %q", got, "Pedro Henrique Alves")
	}
}

func TestStudentNameConferralPhrase(t *testing.T) {
	t.Parallel()

	text := "A congregação confere a Lucas Pereira o grau de mestre."
	if got := StudentName(text); got != "Lucas Pereira" {
		t.Fatalf("StudentName() = %q, want %q", got, "Lucas Pereira")
	}
}

func TestStudentNameNoCandidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
	}{
		{name: "empty text", text: ""},
		{name: "single word", text: "Name: Madonna"},
		{name: "digits in candidate", text: "Name: Agente 007 Bond"},
		{name: "only boilerplate", text: "UNIVERSIDADE FEDERAL\nDIPLOMA DE BACHARELADO"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := StudentName(tc.text); got != "" {
				t.Fatalf("StudentName(%q) = %q, want empty", tc.text, got)
			}
		})
	}
}

func TestStudentNameLengthLimits(t *testing.T) {
	t.Parallel()

	long := "Name: Aa"
	for i := 0; i < 60; i++ {
		long += " Bb"
	}
	if got := StudentName(long); got != "" {
		t.Fatalf("StudentName() accepted an over-length candidate: %q", got)
	}
}

func TestValidNameRejectsPunctuation(t *testing.T) {
	t.Parallel()

	if validName("Ana; Silva") {
		t.Fatal("semicolon should invalidate a candidate")
	}
	if !validName("Ana Silva") {
		t.Fatal("plain two-word name should validate")
	}
}
