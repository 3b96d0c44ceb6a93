package service

import "errors"

// Ошибки ядра адаптивного экзамена.
// Разделены по таксономии: not-found (ошибка вызывающего), protocol
// (вызовы не по порядку, сессия не меняется), data-sufficiency
// (ожидаемые краевые случаи с определённым поведением).
var (
	// ErrExamNotFound — экзамен с указанным ID не существует
	ErrExamNotFound = errors.New("exam not found")

	// ErrSessionNotFound — сессия с указанным ID не существует
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminated — операция над завершённой или брошенной сессией
	ErrSessionTerminated = errors.New("session is terminated")

	// ErrItemNotAdministered — ответ на вопрос, который не был последним выданным
	// (защита от повторной или внеочередной отправки)
	ErrItemNotAdministered = errors.New("item was not the last administered question")

	// ErrNoQuestionIssued — ответ пришёл до того, как сессии был выдан вопрос
	ErrNoQuestionIssued = errors.New("no question has been issued for this session")

	// ErrPoolExhausted — нет доступных вопросов; сессия завершается досрочно.
	// Это штатный сигнал, а не сбой.
	ErrPoolExhausted = errors.New("item pool exhausted")

	// ErrInsufficientPoolCoverage — пул не покрывает требования экзамена
	ErrInsufficientPoolCoverage = errors.New("insufficient pool coverage for requirements")

	// ErrJobNotFound — задача генерации с указанным ID не существует или истекла
	ErrJobNotFound = errors.New("generation job not found")
)
