// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package recommend turns watch history into per-user ranked libraries.
//
// # Pipeline
//
// One run for a (user, kind) pair goes through these stages:
//
//  1. Profile: the user's engaged items are weighted (EngagementWeight) and
//     their embeddings averaged into a unit-length taste vector. Profiles
//     are cached in the store and rebuilt when stale.
//  2. Candidates: unwatched catalog items, with cosine similarity to the
//     profile computed in DuckDB.
//  3. Scoring: similarity, genre novelty against the recent watch window and
//     community rating are blended with per-user weights.
//  4. Diversity: an optional MMR pass trades score for genre variety.
//  5. Materialization: the finalists are written as a virtual library and
//     published to the media server.
//
// Every scored candidate is persisted with the run, finalists flagged as
// selected, so a library's contents can be explained after the fact.
//
// # Determinism
//
// Given the same store contents and clock, Build and ScoreCandidates return
// identical results. Ties keep input order, and the store returns
// candidates in a stable order.
package recommend
