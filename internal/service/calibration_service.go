package service

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/domain/repository"
	"github.com/yourusername/examengine-api/internal/service/catengine"
)

// DefaultCalibrationSnapshotLimit — размер снимка журнала ответов по умолчанию
const DefaultCalibrationSnapshotLimit = 100000

// CalibrationService запускает офлайн-калибровку параметров вопросов.
// Работает по снимку журнала ответов и никогда не блокирует живые сессии;
// применение оценок к пулу — отдельный явный шаг с повышением версии
// параметров (идущие сессии держат свой снимок и свопа не замечают).
type CalibrationService struct {
	itemRepo        repository.ItemRepository
	sessionRepo     repository.SessionRepository
	calibrationRepo repository.CalibrationRepository
	calibrator      *catengine.Calibrator
}

// NewCalibrationService создает новый сервис калибровки
func NewCalibrationService(
	itemRepo repository.ItemRepository,
	sessionRepo repository.SessionRepository,
	calibrationRepo repository.CalibrationRepository,
	config *catengine.Config,
) *CalibrationService {
	return &CalibrationService{
		itemRepo:        itemRepo,
		sessionRepo:     sessionRepo,
		calibrationRepo: calibrationRepo,
		calibrator:      catengine.NewCalibrator(config),
	}
}

// RunCalibration выполняет калибровку по накопленному журналу ответов
// и сохраняет результат в историю калибровок
func (s *CalibrationService) RunCalibration(snapshotLimit int) (*entity.DifficultyCalibration, error) {
	if snapshotLimit <= 0 {
		snapshotLimit = DefaultCalibrationSnapshotLimit
	}

	observations, err := s.sessionRepo.GetResponseLog(snapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot response log: %w", err)
	}

	return s.CalibrateObservations(observations)
}

// CalibrateObservations калибрует параметры по переданной матрице ответов.
// Вопросы берутся из пула по встреченным в матрице ID.
func (s *CalibrationService) CalibrateObservations(observations []entity.ResponseObservation) (*entity.DifficultyCalibration, error) {
	itemIDs := distinctItemIDs(observations)
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: response matrix is empty", ErrInsufficientPoolCoverage)
	}

	items, err := s.itemRepo.GetByIDs(itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for calibration: %w", err)
	}

	result := s.calibrator.Calibrate(items, observations)

	calibration := &entity.DifficultyCalibration{
		ID:             uuid.NewString(),
		SampleSize:     result.SampleSize,
		ItemEstimates:  result.Estimates,
		SkippedItemIDs: result.SkippedItemIDs,
		FitStats: entity.FitStatistics{
			LogLikelihood: result.LogLikelihood,
			Converged:     result.Converged,
			Iterations:    result.Iterations,
		},
	}
	if calibration.SkippedItemIDs == nil {
		calibration.SkippedItemIDs = entity.UintArray{}
	}

	if err := s.calibrationRepo.Create(calibration); err != nil {
		return nil, fmt.Errorf("failed to persist calibration: %w", err)
	}

	log.Printf("[Calibration] Калибровка %s: %d учащихся, %d оценок, %d пропущено, сходимость=%t за %d итераций",
		calibration.ID, result.SampleSize, len(result.Estimates), len(result.SkippedItemIDs),
		result.Converged, result.Iterations)

	return calibration, nil
}

// ApplyCalibration применяет сохранённую калибровку к пулу вопросов.
// Версия параметров каждого затронутого вопроса повышается.
func (s *CalibrationService) ApplyCalibration(calibrationID string) (int, error) {
	calibration, err := s.calibrationRepo.GetByID(calibrationID)
	if err != nil {
		return 0, fmt.Errorf("failed to load calibration %s: %w", calibrationID, err)
	}

	applied, err := s.itemRepo.ApplyCalibration(calibration.ItemEstimates)
	if err != nil {
		return 0, fmt.Errorf("failed to apply calibration %s: %w", calibrationID, err)
	}

	log.Printf("[Calibration] Применена калибровка %s: обновлено %d вопросов", calibrationID, applied)
	return applied, nil
}

// GetCalibration возвращает сохранённую калибровку по ID
func (s *CalibrationService) GetCalibration(id string) (*entity.DifficultyCalibration, error) {
	return s.calibrationRepo.GetByID(id)
}

// ListCalibrations возвращает историю калибровок
func (s *CalibrationService) ListCalibrations(limit, offset int) ([]entity.DifficultyCalibration, error) {
	return s.calibrationRepo.List(limit, offset)
}

func distinctItemIDs(observations []entity.ResponseObservation) []uint {
	seen := make(map[uint]bool)
	var ids []uint
	for _, obs := range observations {
		if !seen[obs.ItemID] {
			seen[obs.ItemID] = true
			ids = append(ids, obs.ItemID)
		}
	}
	return ids
}
