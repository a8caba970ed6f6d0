package core

import "testing"

func TestCommittedTagVectorSecretFromPlaintext(t *testing.T) {
	tv := NewTagVector()
	tv.Set(1, 500_000)
	tv.Set(2, 250_000)

	secret, err := CommittedTagVectorSecretFromPlaintext(1_000_000, tv)
	if err != nil {
		t.Fatalf("CommittedTagVectorSecretFromPlaintext: %v", err)
	}
	if secret.TotalMass != 750_000 {
		t.Fatalf("TotalMass=%d want 750000", secret.TotalMass)
	}
	if len(secret.Entries) != 2 {
		t.Fatalf("Entries=%d want 2", len(secret.Entries))
	}

	committed, err := secret.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(committed.Entries) != 2 {
		t.Fatalf("committed Entries=%d want 2", len(committed.Entries))
	}
	if committed.TotalCommitment == nil {
		t.Fatal("TotalCommitment is nil")
	}
}

func TestEmptyCommittedTagVectorSecret(t *testing.T) {
	s := EmptyCommittedTagVectorSecret()
	if s.TotalMass != 0 || len(s.Entries) != 0 {
		t.Fatal("empty secret should have no mass and no entries")
	}
	c, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.TotalCommitment == nil {
		t.Fatal("TotalCommitment is nil")
	}
}

func TestTagConservationProofRoundTrip(t *testing.T) {
	inTags := NewTagVector()
	inTags.Set(1, 1_000_000)
	inSecret, err := CommittedTagVectorSecretFromPlaintext(1_000_000, inTags)
	if err != nil {
		t.Fatalf("input secret: %v", err)
	}

	outTags := NewTagVector()
	outTags.Set(1, 1_000_000)
	outSecret, err := CommittedTagVectorSecretFromPlaintext(1_000_000, outTags)
	if err != nil {
		t.Fatalf("output secret: %v", err)
	}

	proof, err := ProveTagConservation(
		[]*CommittedTagVectorSecret{inSecret},
		[]*CommittedTagVectorSecret{outSecret},
		0,
	)
	if err != nil {
		t.Fatalf("ProveTagConservation: %v", err)
	}
	if proof == nil {
		t.Fatal("expected a conservation proof for a balanced transfer")
	}

	inCommitted, err := inSecret.Commit()
	if err != nil {
		t.Fatalf("input commit: %v", err)
	}
	outCommitted, err := outSecret.Commit()
	if err != nil {
		t.Fatalf("output commit: %v", err)
	}

	ok, err := VerifyTagConservation(
		[]*CommittedTagVector{inCommitted},
		[]*CommittedTagVector{outCommitted},
		0,
		proof,
	)
	if err != nil {
		t.Fatalf("VerifyTagConservation: %v", err)
	}
	if !ok {
		t.Fatal("expected conservation proof to verify")
	}
}

func TestTagConservationRejectsOverMinting(t *testing.T) {
	inTags := NewTagVector()
	inTags.Set(1, 1_000_000)
	inSecret, err := CommittedTagVectorSecretFromPlaintext(1_000, inTags)
	if err != nil {
		t.Fatalf("input secret: %v", err)
	}

	outTags := NewTagVector()
	outTags.Set(1, 1_000_000)
	outSecret, err := CommittedTagVectorSecretFromPlaintext(1_000_000, outTags)
	if err != nil {
		t.Fatalf("output secret: %v", err)
	}

	proof, err := ProveTagConservation(
		[]*CommittedTagVectorSecret{inSecret},
		[]*CommittedTagVectorSecret{outSecret},
		0,
	)
	if err != nil {
		t.Fatalf("ProveTagConservation: %v", err)
	}
	if proof != nil {
		t.Fatal("expected nil proof when output mass exceeds decayed input mass")
	}
}
