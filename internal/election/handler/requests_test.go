package handler

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"comitia/internal/election/models"
)

// UpdateStatusRequestSuite tests updateStatusRequest validation and
// normalization.
type UpdateStatusRequestSuite struct {
	suite.Suite
}

func TestUpdateStatusRequestSuite(t *testing.T) {
	suite.Run(t, new(UpdateStatusRequestSuite))
}

// TestValidation verifies every status the handler later re-parses is
// accepted and everything else is rejected up front.
func (s *UpdateStatusRequestSuite) TestValidation() {
	s.Run("known statuses pass", func() {
		for _, raw := range []string{"draft", "scheduled", "active", "completed", "cancelled"} {
			req := &updateStatusRequest{Status: raw}
			req.Normalize()
			s.NoError(req.Validate(), raw)
		}
	})

	s.Run("unknown status rejected", func() {
		req := &updateStatusRequest{Status: "paused"}
		req.Normalize()
		s.Error(req.Validate())
	})

	s.Run("empty status rejected", func() {
		req := &updateStatusRequest{}
		req.Normalize()
		s.Error(req.Validate())
	})
}

// TestNormalize verifies trimming and lowercasing, and that a normalized,
// validated value always parses to the typed status the handler passes on.
func (s *UpdateStatusRequestSuite) TestNormalize() {
	req := &updateStatusRequest{Status: "  ACTIVE  "}
	req.Normalize()
	s.Equal("active", req.Status)
	s.Require().NoError(req.Validate())

	status, err := models.ParseElectionStatus(req.Status)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, status)
}
