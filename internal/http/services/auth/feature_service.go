package auth

import "sync/atomic"

// featureService sirve los flags de política desde memoria. El holder
// atómico permite recargas en caliente sin locks en el hot path.
type featureService struct {
	current atomic.Pointer[SystemFeatures]
}

// NewFeatureService creates a FeatureService with the given initial flags.
func NewFeatureService(f SystemFeatures) FeatureService {
	s := &featureService{}
	s.current.Store(&f)
	return s
}

func (s *featureService) SystemFeatures() SystemFeatures {
	return *s.current.Load()
}

// Update reemplaza los flags vigentes. Las resoluciones en curso siguen
// viendo el snapshot anterior; las nuevas ven el actualizado.
func (s *featureService) Update(f SystemFeatures) {
	s.current.Store(&f)
}
