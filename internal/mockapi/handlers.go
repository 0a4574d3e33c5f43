package mockapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func (s *Server) handleToken(c *gin.Context) {
	var body tokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}
	if body.ClientID != s.cfg.ClientID || body.ClientSecret != s.cfg.ClientSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"Status": 0, "Message": "invalid client credentials"})
		return
	}

	now := s.clock.Now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    "fieldsync-mock",
		Subject:   body.ClientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.ClientSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	s.mu.Lock()
	s.tokensIssued++
	s.mu.Unlock()

	respond(c, 1, "OK", gin.H{
		"AccessToken": signed,
		"ClientId":    body.ClientID,
		"ValidTo":     exp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleSave(c *gin.Context) {
	var body SaveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	s.mu.Lock()
	s.nextID++
	rec := record{
		ID:           s.nextID,
		EmployeeName: body.EmployeeName,
		LeaseNo:      body.LeaseNo,
		Lattitude:    body.Lattitude,
		Longtitude:   body.Longtitude,
		CreatedDate:  body.CreatedDate,
		Address:      body.Address,
		Comment:      body.Comment,
		TipeCheckin:  body.Type(),
		LabelMap:     labelFor(body),
	}
	for _, ct := range s.contracts[body.EmployeeName] {
		if ct.LeaseNo == body.LeaseNo {
			rec.CustName = ct.CustName
		}
	}
	s.saves = append(s.saves, body)
	s.records[body.EmployeeName] = append(s.records[body.EmployeeName], rec)
	s.mu.Unlock()

	respond(c, 1, "OK", gin.H{"Id": rec.ID})
}

func labelFor(b SaveBody) string {
	switch {
	case b.Start:
		return "Start"
	case b.Stop:
		return "Stop"
	case b.CheckIn:
		return "Checkin"
	}
	return ""
}

func (s *Server) handleUpdateCheck(c *gin.Context) {
	var body UpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	s.mu.Lock()
	s.updates = append(s.updates, body)
	list := s.contracts[body.EmployeeName]
	for i := range list {
		if list[i].LeaseNo == body.LeaseNo {
			list[i].CheckinDate = body.CreatedDate
			list[i].Comment = body.Comment
		}
	}
	s.mu.Unlock()

	respond(c, 1, "OK", nil)
}

func (s *Server) handleIsStarted(c *gin.Context) {
	var q employeeQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	s.mu.Lock()
	action, ok := s.nextAction[q.EmployeeName]
	if !ok {
		action = "Start"
		date := datePart(q.CreatedDate)
		for _, r := range s.records[q.EmployeeName] {
			if datePart(r.CreatedDate) != date {
				continue
			}
			switch r.TipeCheckin {
			case "start":
				action = "Stop"
			case "stop":
				action = "Start"
			}
		}
	}
	s.mu.Unlock()

	respond(c, 1, "OK", gin.H{"NextAction": action})
}

func (s *Server) handleGetRecord(c *gin.Context) {
	var q employeeQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	date := datePart(q.CreatedDate)
	s.mu.Lock()
	out := []record{}
	for _, r := range s.records[q.EmployeeName] {
		if date == "" || datePart(r.CreatedDate) == date {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	respond(c, 1, "OK", out)
}

func (s *Server) handleListDtl(c *gin.Context) {
	var q employeeQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"Status": 0, "Message": err.Error()})
		return
	}

	s.mu.Lock()
	out := []Contract{}
	for _, ct := range s.contracts[q.EmployeeName] {
		if q.LeaseNo != "" && ct.LeaseNo != q.LeaseNo {
			continue
		}
		if ct.CheckinDate == "" {
			ct.CheckinDate = neverCheckedIn
		}
		out = append(out, ct)
	}
	s.mu.Unlock()

	respond(c, 1, "OK", out)
}

func datePart(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return strings.TrimSpace(ts)
}
