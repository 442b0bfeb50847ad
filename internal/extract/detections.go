package extract

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
	"github.com/aoli-al/havoc-mutation-eval/internal/utils"
)

const DetectionsFile = "detections.csv"

// Detection is the first time a campaign hit a defect. Detected is false
// for campaigns of the defect's subject that never hit it.
type Detection struct {
	CampaignID string
	Fuzzer     string
	Subject    string
	Defect     string
	Time       time.Duration
	Detected   bool
}

var detectionsHeader = []string{"campaign_id", "fuzzer", "subject", "defect", "time"}

// LoadFailures reads failures.json of every campaign. Unreadable files are
// logged and yield no failures.
func LoadFailures(campaigns []*campaign.Campaign, logger *zap.Logger) map[string][]campaign.Failure {
	out := make(map[string][]campaign.Failure, len(campaigns))
	for _, c := range campaigns {
		failures, err := c.Failures()
		if err != nil {
			logger.Warn("failed to read failures", zap.String("campaign_id", c.ID), zap.Error(err))
			continue
		}
		out[c.ID] = failures
	}
	return out
}

// Detections maps failures to known defects and keeps the first detection
// per campaign and defect. Every campaign of a subject gets a row for every
// defect detected on that subject.
func Detections(campaigns []*campaign.Campaign, failures map[string][]campaign.Failure, known *campaign.KnownFailures) []Detection {
	type key struct{ campaignID, defect string }
	first := make(map[key]time.Duration)
	defectsBySubject := make(map[string]map[string]struct{})

	for _, c := range campaigns {
		for _, f := range failures[c.ID] {
			for _, defect := range known.Defects(c.Subject, f) {
				if defect == "" {
					continue
				}
				k := key{c.ID, defect}
				if cur, ok := first[k]; !ok || f.DetectionTime < cur {
					first[k] = f.DetectionTime
				}
				if defectsBySubject[c.Subject] == nil {
					defectsBySubject[c.Subject] = make(map[string]struct{})
				}
				defectsBySubject[c.Subject][defect] = struct{}{}
			}
		}
	}

	var out []Detection
	for _, c := range campaigns {
		for defect := range defectsBySubject[c.Subject] {
			d := Detection{CampaignID: c.ID, Fuzzer: c.Fuzzer, Subject: c.Subject, Defect: defect}
			d.Time, d.Detected = first[key{c.ID, defect}]
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return out[i].Defect < out[j].Defect
	})
	return out
}

// WriteDetections writes detection times in milliseconds, empty when the
// defect was not detected.
func WriteDetections(path string, detections []Detection) error {
	rows := make([][]string, 0, len(detections))
	for _, d := range detections {
		t := ""
		if d.Detected {
			t = formatMillis(d.Time)
		}
		rows = append(rows, []string{d.CampaignID, d.Fuzzer, d.Subject, d.Defect, t})
	}
	return utils.WriteCSV(path, detectionsHeader, rows)
}

func ReadDetections(path string) ([]Detection, error) {
	t, err := utils.ReadCSV(path, detectionsHeader...)
	if err != nil {
		return nil, err
	}
	out := make([]Detection, 0, len(t.Rows))
	for _, row := range t.Rows {
		d := Detection{
			CampaignID: t.Str(row, "campaign_id"),
			Fuzzer:     t.Str(row, "fuzzer"),
			Subject:    t.Str(row, "subject"),
			Defect:     t.Str(row, "defect"),
		}
		if t.Str(row, "time") != "" {
			ms, err := t.Float(row, "time")
			if err != nil {
				return nil, err
			}
			d.Time, d.Detected = millis(ms), true
		}
		out = append(out, d)
	}
	return out, nil
}
