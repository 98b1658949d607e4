package report

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/mcp-compliance-tester/internal/compliance"
)

// JUnitFormatter renders the report as a JUnit XML testsuite, one testcase
// per diagnostic, for CI systems that ingest that format.
type JUnitFormatter struct{}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     float64     `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

func (f *JUnitFormatter) Write(w io.Writer, r *compliance.HealthReport) error {
	suite := junitSuite{
		Name:  fmt.Sprintf("mcp-compliance %s", r.Server.Name),
		Tests: len(r.Results),
		Time:  float64(r.Metadata.DurationMS) / 1000.0,
	}
	for _, res := range r.Results {
		c := junitCase{
			Name:      res.TestName,
			Classname: res.Category,
			Time:      float64(res.DurationMS) / 1000.0,
		}
		switch res.Status {
		case compliance.StatusFailed:
			suite.Failures++
			c.Failure = &junitFailure{
				Message: res.Message,
				Type:    string(res.IssueType),
				Body:    failureBody(res),
			}
		case compliance.StatusSkipped:
			suite.Skipped++
			c.Skipped = &junitSkipped{Message: res.Message}
		}
		suite.Cases = append(suite.Cases, c)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("encoding junit report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func failureBody(res *compliance.DiagnosticResult) string {
	body := res.Message
	if res.Expected != "" {
		body += fmt.Sprintf("\nexpected: %s\nactual: %s", res.Expected, res.Actual)
	}
	for _, rec := range res.Recommendations {
		body += "\n- " + rec
	}
	return body
}
