package logger

import "testing"

func TestMetricsToggledOn(t *testing.T) {
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		"TRUE":  true,
		"yes":   true,
		"on":    true,
		" on ":  true,
		"":      false,
		"0":     false,
		"false": false,
		"off":   false,
		"maybe": false,
	}
	for in, want := range cases {
		if got := metricsToggledOn(in); got != want {
			t.Errorf("metricsToggledOn(%q) = %v, want %v", in, got, want)
		}
	}
}

// Without the environment toggle the client must stay uninitialized so
// publishMetrics keeps skipping.
func TestInitCloudWatchFromEnvDisabled(t *testing.T) {
	t.Setenv("CLOUDWATCH_METRICS", "")
	if InitCloudWatchFromEnv("Candleflow", "Candleflow") {
		t.Fatal("expected metrics to stay disabled with the toggle unset")
	}
	if cwClient != nil {
		t.Fatal("CloudWatch client initialized without the toggle")
	}

	t.Setenv("CLOUDWATCH_METRICS", "false")
	if InitCloudWatchFromEnv("Candleflow", "Candleflow") {
		t.Fatal("expected metrics to stay disabled with the toggle off")
	}
}
