package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"ielts-speaking/internal/speaking"
)

type questionsResponse struct {
	Questions []string `json:"questions"`
}

type part3Request struct {
	Part2Topic string `json:"part2_topic"`
}

type evaluateRequest struct {
	Conversation []speaking.Turn `json:"conversation"`
}

func (s *Server) part1(w http.ResponseWriter, r *http.Request) {
	questions, err := s.deps.Questions.Part1(r.Context())
	if err != nil {
		s.log.Error("part 1 generation failed", "error", err)
		respondError(w, msgPart1Failed, http.StatusInternalServerError)
		return
	}
	respondJSON(w, questionsResponse{Questions: questions}, http.StatusOK)
}

func (s *Server) part2(w http.ResponseWriter, r *http.Request) {
	card, err := s.deps.Questions.Part2(r.Context())
	if err != nil {
		s.log.Error("part 2 generation failed", "error", err)
		respondError(w, msgPart2Failed, http.StatusInternalServerError)
		return
	}
	respondJSON(w, card, http.StatusOK)
}

func (s *Server) part3(w http.ResponseWriter, r *http.Request) {
	var req part3Request
	err := json.NewDecoder(r.Body).Decode(&req)
	topic := strings.TrimSpace(req.Part2Topic)
	if err != nil || topic == "" {
		respondError(w, msgTopicRequired, http.StatusBadRequest)
		return
	}

	questions, err := s.deps.Questions.Part3(r.Context(), topic)
	if err != nil {
		s.log.Error("part 3 generation failed", "topic", topic, "error", err)
		respondError(w, msgPart3Failed, http.StatusInternalServerError)
		return
	}
	respondJSON(w, questionsResponse{Questions: questions}, http.StatusOK)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Conversation) == 0 {
		respondError(w, msgConversationReq, http.StatusBadRequest)
		return
	}

	report, err := s.deps.Evaluator.Evaluate(r.Context(), req.Conversation)
	if err != nil {
		s.log.Error("evaluation failed", "turns", len(req.Conversation), "error", err)
		respondError(w, msgEvaluateFailed, http.StatusInternalServerError)
		return
	}
	respondJSON(w, report, http.StatusOK)
}
