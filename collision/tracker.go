package collision

// StepCounts are the collision statistics of one step.
type StepCounts struct {
	Collisions int32
	Atoms      float64
	Particles  int32
}

// Tracker holds the statistics of every recorded step in three parallel
// sequences. It only grows.
type Tracker struct {
	NumCollisions []int32
	NumAtoms      []float64
	NumParticles  []int32
}

// Append adds the counts of one step.
func (t *Tracker) Append(c StepCounts) {
	t.NumCollisions = append(t.NumCollisions, c.Collisions)
	t.NumAtoms = append(t.NumAtoms, c.Atoms)
	t.NumParticles = append(t.NumParticles, c.Particles)
}

// Len returns the number of recorded steps.
func (t *Tracker) Len() int {
	return len(t.NumCollisions)
}

// At returns the counts of the i-th recorded step.
func (t *Tracker) At(i int) StepCounts {
	return StepCounts{
		Collisions: t.NumCollisions[i],
		Atoms:      t.NumAtoms[i],
		Particles:  t.NumParticles[i],
	}
}
