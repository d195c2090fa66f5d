// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fix

import (
	"github.com/perfscope/perfscope/services/fix_engine/ast"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

// accessTemplates returns the N+1 fix catalog for the detected family.
// The eager-load / batch-query / join triad is expressed in each family's
// own idiom; the generic catalog covers unrecognized libraries.
func accessTemplates(family ast.Family) []template {
	switch family {
	case ast.FamilyMongoose:
		return mongooseTemplates()
	case ast.FamilySequelize:
		return sequelizeTemplates()
	case ast.FamilyPrisma:
		return prismaTemplates()
	case ast.FamilyTypeORM:
		return typeormTemplates()
	case ast.FamilyKnex:
		return knexTemplates()
	default:
		return genericAccessTemplates()
	}
}

func mongooseTemplates() []template {
	return []template{
		{
			Type: TypeEagerLoading,
			Code: `const users = await User.find({ active: true }).populate('profile');
for (const u of users) {
  use(u.profile);
}`,
			Reasoning: "populate() resolves the referenced documents in one extra query instead of one per iteration.",
			Minutes:   20,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeBatchQuery,
			Code: `const ids = users.map(u => u.profileId);
const profiles = await Profile.find({ _id: { $in: ids } });
const byId = new Map(profiles.map(p => [String(p._id), p]));
for (const u of users) {
  use(byId.get(String(u.profileId)));
}`,
			Reasoning: "A single $in query fetches every referenced document; the Map restores per-item access in O(1).",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeJoinQuery,
			Code: `const users = await User.aggregate([
  { $match: { active: true } },
  { $lookup: { from: 'profiles', localField: 'profileId', foreignField: '_id', as: 'profile' } },
]);`,
			Reasoning: "An aggregation $lookup joins the collections server-side, returning the combined documents in one round trip.",
			Minutes:   45,
			Risk:      detect.RiskMedium,
		},
	}
}

func sequelizeTemplates() []template {
	return []template{
		{
			Type: TypeEagerLoading,
			Code: `const users = await User.findAll({
  where: { active: true },
  include: [{ model: Profile }],
});`,
			Reasoning: "include eager-loads the association with a generated JOIN, replacing the per-row lookup.",
			Minutes:   20,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeBatchQuery,
			Code: `const ids = users.map(u => u.profileId);
const profiles = await Profile.findAll({ where: { id: { [Op.in]: ids } } });
const byId = new Map(profiles.map(p => [p.id, p]));`,
			Reasoning: "One Op.in query fetches all rows; the Map keeps per-item access constant time.",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeRawSQL,
			Code: `const [rows] = await sequelize.query(
  'SELECT u.*, p.* FROM users u JOIN profiles p ON p.id = u.profile_id WHERE u.active = true'
);`,
			Reasoning: "A hand-written JOIN collapses the access to one statement when the ORM's include cannot express it.",
			Minutes:   60,
			Risk:      detect.RiskHigh,
		},
	}
}

func prismaTemplates() []template {
	return []template{
		{
			Type: TypeEagerLoading,
			Code: `const users = await prisma.user.findMany({
  where: { active: true },
  include: { profile: true },
});`,
			Reasoning: "include loads the relation alongside the parent rows in the same query plan.",
			Minutes:   15,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeBatchQuery,
			Code: `const ids = users.map(u => u.profileId);
const profiles = await prisma.profile.findMany({ where: { id: { in: ids } } });
const byId = new Map(profiles.map(p => [p.id, p]));`,
			Reasoning: "A single `in` filter replaces the per-iteration findUnique; the Map restores direct access.",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeRawSQL,
			Code: "const rows = await prisma.$queryRaw`\n" +
				"  SELECT u.*, p.* FROM \"User\" u JOIN \"Profile\" p ON p.id = u.\"profileId\" WHERE u.active = true\n" +
				"`;",
			Reasoning: "$queryRaw expresses the JOIN directly when the relation shape falls outside include.",
			Minutes:   60,
			Risk:      detect.RiskHigh,
		},
	}
}

func typeormTemplates() []template {
	return []template{
		{
			Type: TypeEagerLoading,
			Code: `const users = await userRepository.find({
  where: { active: true },
  relations: { profile: true },
});`,
			Reasoning: "relations eager-loads the association through the repository API, removing the per-row query.",
			Minutes:   20,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeBatchQuery,
			Code: `const ids = users.map(u => u.profileId);
const profiles = await profileRepository.findBy({ id: In(ids) });
const byId = new Map(profiles.map(p => [p.id, p]));`,
			Reasoning: "One In() query fetches every referenced row; the Map keeps lookups O(1).",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeJoinQuery,
			Code: `const users = await userRepository
  .createQueryBuilder('u')
  .leftJoinAndSelect('u.profile', 'p')
  .where('u.active = :active', { active: true })
  .getMany();`,
			Reasoning: "The query builder's leftJoinAndSelect produces one JOIN with full control over the projection.",
			Minutes:   45,
			Risk:      detect.RiskMedium,
		},
	}
}

func knexTemplates() []template {
	return []template{
		{
			Type: TypeJoinQuery,
			Code: `const rows = await knex('users')
  .join('profiles', 'profiles.id', 'users.profile_id')
  .where('users.active', true)
  .select('users.*', 'profiles.name as profile_name');`,
			Reasoning: "A builder JOIN collapses the per-row lookup into one statement.",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeBatchQuery,
			Code: `const ids = users.map(u => u.profile_id);
const profiles = await knex('profiles').whereIn('id', ids);
const byId = new Map(profiles.map(p => [p.id, p]));`,
			Reasoning: "whereIn fetches every referenced row at once; the Map restores per-item access.",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
	}
}

// genericAccessTemplates covers files where no family could be inferred
// from the snippet: library-agnostic batching plus a dataloader-style
// collapse.
func genericAccessTemplates() []template {
	return []template{
		{
			Type: TypeBatchQuery,
			Code: `const ids = items.map(item => item.refId);
const records = await repository.findAll({ id: ids });
const byId = new Map(records.map(r => [r.id, r]));
for (const item of items) {
  use(byId.get(item.refId));
}`,
			Reasoning: "Collect the keys first and issue one query for all of them; the Map keeps per-item access O(1).",
			Minutes:   30,
			Risk:      detect.RiskLow,
		},
		{
			Type: TypeEagerLoading,
			Code: `const items = await repository.findAll({ include: ['relation'] });`,
			Reasoning: "Most data layers can load the relation with the parent query; check the library's eager-load option.",
			Minutes:   30,
			Risk:      detect.RiskMedium,
		},
	}
}
